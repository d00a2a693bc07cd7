// Package reporter posts detection batches to a detection server.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"detectionserver/internal/dto"
	"detectionserver/internal/logger"
	"detectionserver/internal/model"
)

// DefaultTimeout bounds a single SendBatch call.
const DefaultTimeout = 3 * time.Second

// Reporter sends detections to the POST /detections endpoint of a server.
type Reporter struct {
	endpoint string
	client   *http.Client
	logger   *logger.Logger
	timeout  time.Duration
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reporter) { r.client = c }
}

// WithTimeout sets the per-call timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Reporter for endpoint, e.g. http://127.0.0.1:5000/detections.
func New(endpoint string, logger *logger.Logger, opts ...Option) *Reporter {
	r := &Reporter{
		endpoint: endpoint,
		client:   &http.Client{},
		logger:   logger,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type wireDetection struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	BBox       model.BBox `json:"bbox"`
	Source     string     `json:"source,omitempty"`
	Timestamp  string     `json:"timestamp,omitempty"`
}

type batchPayload struct {
	Source     string          `json:"source"`
	Detections []wireDetection `json:"detections"`
}

func toWire(det model.Detection) wireDetection {
	w := wireDetection{
		Label:      det.Label,
		Confidence: det.Confidence,
		BBox:       det.BBox,
		Source:     det.Source,
	}
	// A zero timestamp is left for the server to assign.
	if !det.Timestamp.IsZero() {
		w.Timestamp = det.Timestamp.UTC().Format(model.TimestampLayout)
	}
	return w
}

// SendBatch posts detections as one batch and returns the number the server
// committed. An empty batch is not sent.
func (r *Reporter) SendBatch(ctx context.Context, source string, detections []model.Detection) (int, error) {
	if len(detections) == 0 {
		return 0, nil
	}

	payload := batchPayload{Source: source, Detections: make([]wireDetection, len(detections))}
	for i, det := range detections {
		payload.Detections[i] = toWire(det)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send detections: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr dto.ErrorData
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return 0, fmt.Errorf("backend error: %d %s", resp.StatusCode, apiErr.Error)
		}
		return 0, fmt.Errorf("backend error: %d %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var result dto.IngestResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Inserted, nil
}

// Report sends detections and logs any failure instead of returning it, so
// a producer keeps running while the server is unreachable.
func (r *Reporter) Report(ctx context.Context, source string, detections []model.Detection) {
	if _, err := r.SendBatch(ctx, source, detections); err != nil {
		r.logger.Warning("Failed to send %d detections from %s: %v", len(detections), source, err)
	}
}
