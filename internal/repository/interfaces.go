package repository

import (
	"context"
	"time"

	"detectionserver/internal/dto"
	"detectionserver/internal/model"
)

// DetectionRepository defines the interface for detection data operations.
// Implementations must be safe for concurrent use.
type DetectionRepository interface {
	// Create operations
	Insert(ctx context.Context, det *model.Detection) (int64, error)
	InsertBatch(ctx context.Context, detections []model.Detection) ([]model.InsertResult, error)

	// Read operations
	Query(ctx context.Context, filter *dto.DetectionFilters) ([]model.Detection, error)
	CountAll(ctx context.Context) (int64, error)
	CountByLabel(ctx context.Context) (map[string]int64, error)
	CountSince(ctx context.Context, cutoff time.Time) (int64, error)
	Summarize(ctx context.Context, cutoff time.Time) (*dto.Summary, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
