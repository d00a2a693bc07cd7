package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"detectionserver/internal/logger"
	"detectionserver/internal/metrics"
	"detectionserver/internal/model"
	"detectionserver/internal/repository"
)

// ErrStorage marks failures of the storage layer, as opposed to bad input.
var ErrStorage = errors.New("storage failure")

// Ingestor validates detection payloads and persists them.
type Ingestor struct {
	repo    repository.DetectionRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewIngestor creates an Ingestor. metrics may be nil.
func NewIngestor(repo repository.DetectionRepository, logger *logger.Logger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		repo:    repo,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// IngestSingle validates one record and stores it. Validation failures are
// returned as *model.ValidationError; storage failures wrap ErrStorage.
func (s *Ingestor) IngestSingle(ctx context.Context, raw map[string]interface{}) (model.Detection, error) {
	det, err := model.ParseDetection(raw, model.DefaultSource, s.now)
	if err != nil {
		s.metrics.RecordIngest(metrics.ModeSingle, "invalid", 0, 1)
		return det, err
	}

	if _, err := s.repo.Insert(ctx, &det); err != nil {
		s.metrics.RecordIngest(metrics.ModeSingle, "error", 0, 1)
		return det, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.metrics.RecordIngest(metrics.ModeSingle, "ok", 1, 0)
	return det, nil
}

// IngestBatch validates every element on its own and commits the valid ones.
// The report holds one result per element, in input order. Invalid elements
// are logged and skipped; only a failure of the batch transaction itself is
// returned as an error (wrapping ErrStorage).
func (s *Ingestor) IngestBatch(ctx context.Context, source string, items []interface{}) (model.BatchReport, error) {
	if source == "" {
		source = model.DefaultSource
	}

	report := model.BatchReport{
		Source:  source,
		Results: make([]model.InsertResult, len(items)),
	}

	valid := make([]model.Detection, 0, len(items))
	positions := make([]int, 0, len(items))
	for i, item := range items {
		report.Results[i].Index = i

		raw, ok := item.(map[string]interface{})
		if !ok {
			report.Results[i].Err = &model.ValidationError{Reason: "detection must be a json object"}
			continue
		}

		// Defaults such as the timestamp are computed per element.
		det, err := model.ParseDetection(raw, source, s.now)
		if err != nil {
			report.Results[i].Err = err
			continue
		}

		valid = append(valid, det)
		positions = append(positions, i)
	}

	results, err := s.repo.InsertBatch(ctx, valid)
	if err != nil {
		s.metrics.RecordIngest(metrics.ModeBatch, "error", 0, len(items))
		return report, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	for j, res := range results {
		r := &report.Results[positions[j]]
		r.ID = res.ID
		r.Err = res.Err
	}

	failed := report.Failed()
	for _, f := range failed {
		s.logger.Warning("Skipping invalid detection entry %d from %s: %v", f.Index, source, f.Err)
	}

	s.metrics.RecordIngest(metrics.ModeBatch, "ok", report.Inserted(), len(failed))
	return report, nil
}
