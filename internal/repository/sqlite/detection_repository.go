package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"detectionserver/internal/dto"
	"detectionserver/internal/model"
)

// timeLayout is fixed width so string comparison in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const insertDetectionSQL = `
	INSERT INTO detections (label, confidence, x1, y1, x2, y2, source, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const selectDetectionSQL = `
	SELECT id, label, confidence, x1, y1, x2, y2, source, detected_at
	FROM detections
`

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func insertArgs(det *model.Detection) []interface{} {
	return []interface{}{
		det.Label, det.Confidence,
		det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3],
		det.Source, formatTime(det.Timestamp),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Insert adds a new detection record and sets its ID.
func (r *DetectionRepository) Insert(ctx context.Context, det *model.Detection) (int64, error) {
	result, err := r.db.Writer().ExecContext(ctx, insertDetectionSQL, insertArgs(det)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read detection id: %w", err)
	}
	det.ID = id
	return id, nil
}

// InsertBatch adds multiple detections in a single transaction. Every row runs
// under its own savepoint, so a failing row is reported and skipped while the
// rest commit. IDs are filled in only once the commit has succeeded.
func (r *DetectionRepository) InsertBatch(ctx context.Context, detections []model.Detection) ([]model.InsertResult, error) {
	results := make([]model.InsertResult, len(detections))
	if len(detections) == 0 {
		return results, nil
	}

	tx, err := r.db.Writer().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertDetectionSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(detections))
	for i := range detections {
		results[i].Index = i

		if _, err := tx.ExecContext(ctx, "SAVEPOINT detection_row"); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}

		res, err := stmt.ExecContext(ctx, insertArgs(&detections[i])...)
		if err == nil {
			ids[i], err = res.LastInsertId()
		}
		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT detection_row"); rbErr != nil {
				return nil, fmt.Errorf("failed to roll back savepoint: %w", rbErr)
			}
			results[i].Err = fmt.Errorf("failed to insert detection: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT detection_row"); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
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

	query := selectDetectionSQL + " WHERE 1=1"
	args := []interface{}{}

	if filter.Label != "" {
		query += " AND label = ?"
		args = append(args, filter.Label)
	}

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}

	if !filter.Start.IsZero() {
		query += " AND detected_at >= ?"
		args = append(args, formatTime(filter.Start))
	}

	if !filter.End.IsZero() {
		query += " AND detected_at <= ?"
		args = append(args, formatTime(filter.End))
	}

	query += " ORDER BY detected_at DESC, id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.Reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		det, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		detections = append(detections, det)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detections: %w", err)
	}
	return detections, nil
}

func scanDetection(rows *sql.Rows) (model.Detection, error) {
	var (
		det  model.Detection
		bbox [4]sql.NullFloat64
		ts   string
	)

	if err := rows.Scan(&det.ID, &det.Label, &det.Confidence,
		&bbox[0], &bbox[1], &bbox[2], &bbox[3], &det.Source, &ts); err != nil {
		return det, fmt.Errorf("failed to scan detection: %w", err)
	}

	for i, v := range bbox {
		if v.Valid {
			f := v.Float64
			det.BBox[i] = &f
		}
	}

	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		return det, fmt.Errorf("failed to parse timestamp of detection %d: %w", det.ID, err)
	}
	det.Timestamp = t
	return det, nil
}

// CountAll returns the total number of stored detections.
func (r *DetectionRepository) CountAll(ctx context.Context) (int64, error) {
	return countAll(ctx, r.db.Reader())
}

// CountByLabel returns the number of detections per distinct label.
func (r *DetectionRepository) CountByLabel(ctx context.Context) (map[string]int64, error) {
	return countByLabel(ctx, r.db.Reader())
}

// CountSince returns the number of detections at or after cutoff.
func (r *DetectionRepository) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	return countSince(ctx, r.db.Reader(), cutoff)
}

// Summarize computes all counters inside one read transaction so they agree
// with each other even while writers are active.
func (r *DetectionRepository) Summarize(ctx context.Context, cutoff time.Time) (*dto.Summary, error) {
	tx, err := r.db.Reader().BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

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
	return r.db.Ping(ctx)
}

// Close closes the underlying database.
func (r *DetectionRepository) Close() error {
	return r.db.Close()
}

func countAll(ctx context.Context, q queryer) (int64, error) {
	var count int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM detections`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return count, nil
}

func countSince(ctx context.Context, q queryer, cutoff time.Time) (int64, error) {
	var count int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM detections WHERE detected_at >= ?`,
		formatTime(cutoff)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent detections: %w", err)
	}
	return count, nil
}

func countByLabel(ctx context.Context, q queryer) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT label, COUNT(*) FROM detections GROUP BY label`)
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
