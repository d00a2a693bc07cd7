package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := NewLogger(dir)
	require.NoError(t, err)
	defer l.Close()

	l.Info("ingested %d detections", 3)
	l.Warning("skipping detection %d", 1)
	l.Error("storage failure: %v", "disk full")

	info, err := os.ReadFile(filepath.Join(dir, InfoFile))
	require.NoError(t, err)
	assert.Contains(t, string(info), "INFO")
	assert.Contains(t, string(info), "ingested 3 detections")

	warning, err := os.ReadFile(filepath.Join(dir, WarningFile))
	require.NoError(t, err)
	assert.Contains(t, string(warning), "skipping detection 1")
	assert.NotContains(t, string(warning), "ingested")

	errs, err := os.ReadFile(filepath.Join(dir, ErrorFile))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "disk full")
}

func TestNewLogger_NoDirectory(t *testing.T) {
	l, err := NewLogger("")
	require.NoError(t, err)
	assert.Equal(t, "", l.Directory())
	assert.ErrorIs(t, l.CleanLogs(InfoFile), ErrUnknownLogFile)
}

func TestCleanLogs(t *testing.T) {
	dir := t.TempDir()

	l, err := NewLogger(dir)
	require.NoError(t, err)
	defer l.Close()

	l.Warning("old warning")
	require.NoError(t, l.CleanLogs(WarningFile))

	warning, err := os.ReadFile(filepath.Join(dir, WarningFile))
	require.NoError(t, err)
	assert.Empty(t, warning)

	l.Warning("new warning")
	warning, err = os.ReadFile(filepath.Join(dir, WarningFile))
	require.NoError(t, err)
	assert.Contains(t, string(warning), "new warning")
	assert.NotContains(t, string(warning), "old warning")
}

func TestCleanLogs_RejectsOtherFiles(t *testing.T) {
	l, err := NewLogger(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	assert.ErrorIs(t, l.CleanLogs("../secret.log"), ErrUnknownLogFile)
}

func TestWriter_UsesInfoStream(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)

	_, err := l.Writer().Write([]byte("GET /health 200\n"))
	require.NoError(t, err)
	l.Error("boom")

	assert.Contains(t, buf.String(), "GET /health 200")
	assert.Contains(t, buf.String(), "ERROR")
	assert.Contains(t, buf.String(), "logger_test.go", "call site should be the caller, not the logger")
}
