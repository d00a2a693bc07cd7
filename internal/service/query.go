package service

import (
	"context"
	"fmt"
	"time"

	"detectionserver/internal/dto"
	"detectionserver/internal/model"
	"detectionserver/internal/repository"
)

// Querier answers filtered listings and aggregate statistics.
type Querier struct {
	repo repository.DetectionRepository
	now  func() time.Time
}

// NewQuerier creates a Querier.
func NewQuerier(repo repository.DetectionRepository) *Querier {
	return &Querier{repo: repo, now: time.Now}
}

// List returns detections matching filter, newest first.
func (q *Querier) List(ctx context.Context, filter *dto.DetectionFilters) ([]model.Detection, error) {
	detections, err := q.repo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return detections, nil
}

// Stats returns totals and the detection rate over the trailing window of
// the given minutes. The rate is nil unless minutes is positive.
func (q *Querier) Stats(ctx context.Context, minutes int) (*dto.StatsData, error) {
	cutoff := q.now().UTC().Add(-time.Duration(minutes) * time.Minute)

	summary, err := q.repo.Summarize(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	stats := &dto.StatsData{
		TotalDetections: summary.Total,
		CountsPerLabel:  summary.PerLabel,
		RecentCount:     summary.RecentCount,
	}
	if stats.CountsPerLabel == nil {
		stats.CountsPerLabel = map[string]int64{}
	}
	if minutes > 0 {
		rate := float64(summary.RecentCount) / float64(minutes)
		stats.RecentPerMinute = &rate
	}
	return stats, nil
}
