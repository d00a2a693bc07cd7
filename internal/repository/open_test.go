package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detectionserver/internal/repository/sqlite"
)

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"sqlite:///detections.db", "detections.db"},
		{"sqlite:///data/detections.db", "data/detections.db"},
		{"sqlite:////var/lib/detections.db", "/var/lib/detections.db"},
		{"sqlite://", sqlite.MemoryPath},
		{"sqlite:///:memory:", sqlite.MemoryPath},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, sqlitePath(tt.dsn))
		})
	}
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")

	repo, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer repo.Close()

	_, ok := repo.(*sqlite.DetectionRepository)
	assert.True(t, ok)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestOpen_SQLiteURL(t *testing.T) {
	repo, err := Open(context.Background(), "sqlite://")
	require.NoError(t, err)
	defer repo.Close()

	count, err := repo.CountAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "mongodb://localhost:27017/detections")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedDSN)
	assert.Contains(t, err.Error(), "mongodb")
}
