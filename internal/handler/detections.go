package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"detectionserver/internal/dto"
	"detectionserver/internal/logger"
	"detectionserver/internal/middleware"
	"detectionserver/internal/model"
	"detectionserver/internal/service"
)

var (
	errMissingBody = errors.New("missing json body")
	errNotObject   = errors.New("detection payload must be a json object")
	errTooLarge    = errors.New("request body too large")
)

// IngestDetectionsHandler stores a single detection or a batch
// ({"source": ..., "detections": [...]}).
func IngestDetectionsHandler(ingestor *service.Ingestor, logger *logger.Logger, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.RequestIDFrom(r.Context())

		payload, err := decodePayload(w, r, maxBodyBytes)
		if err != nil {
			if errors.Is(err, errTooLarge) {
				writeError(w, logger, http.StatusRequestEntityTooLarge, err.Error())
				return
			}
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}

		if items, ok := payload["detections"].([]interface{}); ok {
			source, err := batchSource(payload["source"])
			if err != nil {
				writeError(w, logger, http.StatusBadRequest, err.Error())
				return
			}

			report, err := ingestor.IngestBatch(r.Context(), source, items)
			if err != nil {
				logger.Error("[%s] Batch insert from %s failed: %v", reqID, report.Source, err)
				writeError(w, logger, http.StatusInternalServerError, service.ErrStorage.Error())
				return
			}
			if failed := len(report.Failed()); failed > 0 {
				logger.Warning("[%s] Batch from %s: inserted %d, skipped %d", reqID, report.Source, report.Inserted(), failed)
			}
			writeJSON(w, logger, http.StatusCreated, dto.IngestResult{Inserted: report.Inserted()})
			return
		}

		det, err := ingestor.IngestSingle(r.Context(), payload)
		if err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				logger.Warning("[%s] Rejected detection: %v", reqID, err)
				writeError(w, logger, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("[%s] Insert failed: %v", reqID, err)
			writeError(w, logger, http.StatusInternalServerError, service.ErrStorage.Error())
			return
		}

		id := det.ID
		writeJSON(w, logger, http.StatusCreated, dto.IngestResult{Inserted: 1, ID: &id})
	}
}

// decodePayload reads the body as one JSON object. Empty JSON values such as
// null, {}, [] or "" count as a missing body.
func decodePayload(w http.ResponseWriter, r *http.Request, maxBodyBytes int64) (map[string]interface{}, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errTooLarge
		}
		return nil, errMissingBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, errMissingBody
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errMissingBody
	}

	if isEmptyJSON(payload) {
		return nil, errMissingBody
	}
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

func isEmptyJSON(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]interface{}:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	}
	return false
}

func batchSource(v interface{}) (string, error) {
	switch s := v.(type) {
	case nil:
		return model.DefaultSource, nil
	case string:
		if s == "" {
			return model.DefaultSource, nil
		}
		return s, nil
	}
	return "", &model.ValidationError{Field: "source", Reason: "must be a string"}
}

// ListDetectionsHandler returns stored detections, newest first.
func ListDetectionsHandler(querier *service.Querier, logger *logger.Logger, defaultLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := parseDetectionFilters(r, defaultLimit)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}

		detections, err := querier.List(r.Context(), filters)
		if err != nil {
			logger.Error("[%s] Error querying detections: %v", middleware.RequestIDFrom(r.Context()), err)
			writeError(w, logger, http.StatusInternalServerError, service.ErrStorage.Error())
			return
		}
		if detections == nil {
			detections = []model.Detection{}
		}
		writeJSON(w, logger, http.StatusOK, detections)
	}
}

func parseDetectionFilters(r *http.Request, defaultLimit int) (*dto.DetectionFilters, error) {
	q := r.URL.Query()
	filters := &dto.DetectionFilters{
		Label:  q.Get("label"),
		Source: q.Get("source"),
		Limit:  defaultLimit,
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid limit: %q", v)
		}
		filters.Limit = limit
	}

	var err error
	if filters.Start, err = parseTimeParam(q.Get("start")); err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	if filters.End, err = parseTimeParam(q.Get("end")); err != nil {
		return nil, fmt.Errorf("invalid end: %w", err)
	}
	return filters, nil
}

func parseTimeParam(v string) (t time.Time, err error) {
	if v == "" {
		return t, nil
	}
	return model.ParseTimestamp(v)
}
