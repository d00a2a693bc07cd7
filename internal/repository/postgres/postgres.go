// Package postgres stores detections in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"detectionserver/internal/dto"
	"detectionserver/internal/model"
)

const schema = `
	CREATE TABLE IF NOT EXISTS detections (
		id BIGSERIAL PRIMARY KEY,
		label TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		x1 DOUBLE PRECISION,
		y1 DOUBLE PRECISION,
		x2 DOUBLE PRECISION,
		y2 DOUBLE PRECISION,
		source TEXT NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at);
	CREATE INDEX IF NOT EXISTS idx_detections_label ON detections(label);
	CREATE INDEX IF NOT EXISTS idx_detections_source ON detections(source);
`

const insertDetectionSQL = `
	INSERT INTO detections (label, confidence, x1, y1, x2, y2, source, detected_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id
`

// ErrNotConnected is returned when the pool has been closed.
var ErrNotConnected = errors.New("postgres: not connected")

// DetectionRepository implements repository.DetectionRepository for PostgreSQL.
type DetectionRepository struct {
	pool *pgxpool.Pool
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects to connString and makes sure the schema exists.
func New(ctx context.Context, connString string) (*DetectionRepository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DetectionRepository{pool: pool}, nil
}

func insertArgs(det *model.Detection) []any {
	return []any{
		det.Label, det.Confidence,
		det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3],
		det.Source, det.Timestamp.UTC(),
	}
}

// Insert adds a new detection record and sets its ID.
func (r *DetectionRepository) Insert(ctx context.Context, det *model.Detection) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, insertDetectionSQL, insertArgs(det)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert detection: %w", err)
	}
	det.ID = id
	return id, nil
}

// InsertBatch adds multiple detections in one transaction with a savepoint
// per row. A failing row is rolled back to its savepoint and reported; the
// others commit. IDs are filled in only after the commit succeeds.
func (r *DetectionRepository) InsertBatch(ctx context.Context, detections []model.Detection) ([]model.InsertResult, error) {
	results := make([]model.InsertResult, len(detections))
	if len(detections) == 0 {
		return results, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, len(detections))
	for i := range detections {
		results[i].Index = i

		// A nested transaction in pgx is a savepoint.
		sp, err := tx.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}

		if err := sp.QueryRow(ctx, insertDetectionSQL, insertArgs(&detections[i])...).Scan(&ids[i]); err != nil {
			if rbErr := sp.Rollback(ctx); rbErr != nil {
				return nil, fmt.Errorf("failed to roll back savepoint: %w", rbErr)
			}
			results[i].Err = fmt.Errorf("failed to insert detection: %w", err)
			continue
		}

		if err := sp.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	for i := range results {
		if results[i].Err == nil {
			results[i].ID = ids[i]
			detections[i].ID = ids[i]
		}
	}
	return results, nil
}

// Query retrieves detections matching every set filter, newest first.
func (r *DetectionRepository) Query(ctx context.Context, filter *dto.DetectionFilters) ([]model.Detection, error) {
	detections := []model.Detection{}
	if filter.Limit <= 0 {
		return detections, nil
	}

	query := `SELECT id, label, confidence, x1, y1, x2, y2, source, detected_at FROM detections WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Label != "" {
		query += " AND label = " + arg(filter.Label)
	}

	if filter.Source != "" {
		query += " AND source = " + arg(filter.Source)
	}

	if !filter.Start.IsZero() {
		query += " AND detected_at >= " + arg(filter.Start.UTC())
	}

	if !filter.End.IsZero() {
		query += " AND detected_at <= " + arg(filter.End.UTC())
	}

	query += " ORDER BY detected_at DESC, id DESC LIMIT " + arg(filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var det model.Detection
		if err := rows.Scan(&det.ID, &det.Label, &det.Confidence,
			&det.BBox[0], &det.BBox[1], &det.BBox[2], &det.BBox[3], &det.Source, &det.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		det.Timestamp = det.Timestamp.UTC()
		detections = append(detections, det)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detections: %w", err)
	}
	return detections, nil
}

// CountAll returns the total number of stored detections.
func (r *DetectionRepository) CountAll(ctx context.Context) (int64, error) {
	return countAll(ctx, r.pool)
}

// CountByLabel returns the number of detections per distinct label.
func (r *DetectionRepository) CountByLabel(ctx context.Context) (map[string]int64, error) {
	return countByLabel(ctx, r.pool)
}

// CountSince returns the number of detections at or after cutoff.
func (r *DetectionRepository) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	return countSince(ctx, r.pool, cutoff)
}

// Summarize reads all counters from one repeatable-read snapshot.
func (r *DetectionRepository) Summarize(ctx context.Context, cutoff time.Time) (*dto.Summary, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	summary := &dto.Summary{}
	if summary.PerLabel, err = countByLabel(ctx, tx); err != nil {
		return nil, err
	}
	if summary.Total, err = countAll(ctx, tx); err != nil {
		return nil, err
	}
	if summary.RecentCount, err = countSince(ctx, tx, cutoff); err != nil {
		return nil, err
	}
	return summary, nil
}

// Ping verifies the database is reachable.
func (r *DetectionRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return ErrNotConnected
	}
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *DetectionRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	return nil
}

func countAll(ctx context.Context, q querier) (int64, error) {
	var count int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM detections`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return count, nil
}

func countSince(ctx context.Context, q querier, cutoff time.Time) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM detections WHERE detected_at >= $1`, cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent detections: %w", err)
	}
	return count, nil
}

func countByLabel(ctx context.Context, q querier) (map[string]int64, error) {
	rows, err := q.Query(ctx, `SELECT label, COUNT(*) FROM detections GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query label counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		counts[label] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate label counts: %w", err)
	}
	return counts, nil
}
