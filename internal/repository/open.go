package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"detectionserver/internal/repository/postgres"
	"detectionserver/internal/repository/sqlite"
)

// DefaultDSN is used when no database location is configured.
const DefaultDSN = "sqlite:///detections.db"

// ErrUnsupportedDSN is returned for connection strings no backend understands.
var ErrUnsupportedDSN = errors.New("unsupported database connection string")

var (
	_ DetectionRepository = (*sqlite.DetectionRepository)(nil)
	_ DetectionRepository = (*postgres.DetectionRepository)(nil)
)

// Open picks a backend from the connection string.
//
//	postgres://... | postgresql://...      Postgres through pgx
//	sqlite:///relative.db | sqlite:////abs  SQLite file (SQLAlchemy style)
//	sqlite:// | :memory:                   SQLite in memory
//	file:... | plain/path.db               SQLite file
func Open(ctx context.Context, dsn string) (DetectionRepository, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		repo, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return openSQLite(sqlitePath(dsn))
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDSN, schemeOf(dsn))
	default:
		return openSQLite(dsn)
	}
}

func openSQLite(path string) (DetectionRepository, error) {
	db, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	return sqlite.NewDetectionRepository(db), nil
}

// sqlitePath strips the SQLAlchemy-style prefix: three slashes precede a
// relative path, four an absolute one.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "sqlite:")
	path = strings.TrimPrefix(path, "//")
	if strings.HasPrefix(path, "/") {
		path = path[1:]
	}
	if path == "" {
		return sqlite.MemoryPath
	}
	return path
}

func schemeOf(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i]
	}
	return dsn
}
