package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detectionserver/internal/logger"
)

func TestReadDetections_JSONArray(t *testing.T) {
	input := `  [
		{"label":"person","confidence":0.9,"bbox":[1,2,3,4],"timestamp":"2025-06-15T12:00:00Z"},
		{"label":"car","confidence":"bad"},
		"junk",
		{"label":"dog","source":"cam9"}
	]`

	dets, skipped, err := readDetections(strings.NewReader(input), "camera_0")
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, dets, 2)
	assert.Equal(t, "camera_0", dets[0].Source)
	assert.Equal(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), dets[0].Timestamp)
	assert.Equal(t, "cam9", dets[1].Source)
	assert.True(t, dets[1].Timestamp.IsZero())
}

func TestReadDetections_JSONLines(t *testing.T) {
	input := "{\"label\":\"a\"}\n\n{broken\n{\"label\":\"b\",\"bbox\":[null,1,2,3]}\n"

	dets, skipped, err := readDetections(strings.NewReader(input), "cam1")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, dets, 2)
	assert.Equal(t, "a", dets[0].Label)
	assert.Nil(t, dets[1].BBox[0])
}

func TestReadDetections_Empty(t *testing.T) {
	dets, skipped, err := readDetections(strings.NewReader("  \n"), "cam1")
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.Zero(t, skipped)
}

func TestReadDetections_BrokenArray(t *testing.T) {
	_, _, err := readDetections(strings.NewReader(`[{"label":"a"}`), "cam1")
	assert.Error(t, err)
}

func TestRunReplay(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Source     string            `json:"source"`
			Detections []json.RawMessage `json:"detections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, "cam1", payload.Source)

		mu.Lock()
		batches = append(batches, len(payload.Detections))
		n := len(batches)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"storage failure"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"inserted": len(payload.Detections)})
	}))
	defer server.Close()

	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, `{"label":"person","confidence":0.5}`)
	}
	lines = append(lines, `not json`)
	var out bytes.Buffer
	opts := options{url: server.URL, source: "cam1", batchSize: 2, timeout: time.Second}
	sum, err := runReplay(t.Context(), &out, strings.NewReader(strings.Join(lines, "\n")), opts, logger.NewDiscard())
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, batches)
	assert.Equal(t, summary{Read: 6, Skipped: 1, Sent: 5, Batches: 3, Inserted: 3, FailedBatches: 1}, sum)
	assert.Contains(t, out.String(), "Sent 5 detections in 3 batches: 3 inserted, 1 failed batches")
}

func TestOpenInput(t *testing.T) {
	_, _, err := openInput(nil, filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "detections.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"label":"a"}`), 0644))
	in, closeInput, err := openInput(nil, path)
	require.NoError(t, err)
	defer closeInput()
	dets, _, err := readDetections(in, "cam1")
	require.NoError(t, err)
	assert.Len(t, dets, 1)

	stdin := strings.NewReader("")
	in, _, err = openInput(stdin, "-")
	require.NoError(t, err)
	assert.Same(t, stdin, in)
}

// countingServer accepts every batch and counts detections per source.
func countingServer(t *testing.T) (*httptest.Server, func() map[string]int) {
	t.Helper()
	var (
		mu       sync.Mutex
		received = map[string]int{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Source     string            `json:"source"`
			Detections []json.RawMessage `json:"detections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		received[payload.Source] += len(payload.Detections)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"inserted": len(payload.Detections)})
	}))
	t.Cleanup(server.Close)

	return server, func() map[string]int {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]int, len(received))
		for k, v := range received {
			out[k] = v
		}
		return out
	}
}

func TestRunStream(t *testing.T) {
	server, received := countingServer(t)

	input := strings.Join([]string{
		`{"label":"a"}`,
		`{"label":"b","source":"cam2"}`,
		`{"label":"c","confidence":"bad"}`,
		`{"label":"d"}`,
		`{"label":"e"}`,
	}, "\n")

	var out bytes.Buffer
	opts := options{url: server.URL, source: "cam1", batchSize: 2, timeout: time.Second, flushInterval: time.Hour}
	sum, err := runStream(t.Context(), &out, strings.NewReader(input), opts, logger.NewDiscard())
	require.NoError(t, err)

	assert.Equal(t, summary{Read: 5, Skipped: 1, Sent: 4}, sum)
	assert.Equal(t, map[string]int{"cam1": 3, "cam2": 1}, received(), "pending records are flushed on exit")
	assert.Contains(t, out.String(), "Queued 4 detections")
}

func TestCommand_StreamFromStdin(t *testing.T) {
	server, received := countingServer(t)

	var out bytes.Buffer
	cmd := Command()
	cmd.SetArgs([]string{"--stream", "--url", server.URL, "--source", "gate", "-"})
	cmd.SetIn(strings.NewReader("{\"label\":\"person\"}\n{\"label\":\"car\"}\n"))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, map[string]int{"gate": 2}, received())
	assert.Contains(t, out.String(), "Queued 2 detections")
}

func TestCommand_RejectsBadBatchSize(t *testing.T) {
	cmd := Command()
	cmd.SetArgs([]string{"--batch-size", "0", "file.json"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
