package reporter

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detectionserver/internal/logger"
	"detectionserver/internal/model"
)

// batchRecorder registers a responder that remembers every received batch.
func batchRecorder(t *testing.T) func() map[string]int {
	t.Helper()
	var (
		mu       sync.Mutex
		received = map[string]int{}
	)
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		func(req *http.Request) (*http.Response, error) {
			var payload batchPayload
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				return nil, err
			}
			mu.Lock()
			received[payload.Source] += len(payload.Detections)
			mu.Unlock()
			return httpmock.NewJsonResponse(http.StatusCreated, map[string]int{"inserted": len(payload.Detections)})
		})
	return func() map[string]int {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]int, len(received))
		for k, v := range received {
			out[k] = v
		}
		return out
	}
}

func TestBuffer_FlushesWhenSourceIsFull(t *testing.T) {
	r := setupReporter(t, logger.NewDiscard())
	received := batchRecorder(t)
	b := NewBuffer(r, 3)
	ctx := context.Background()

	det := model.Detection{Label: "person"}
	b.Add(ctx, "cam1", det, det)
	b.Add(ctx, "cam2", det)
	assert.Zero(t, httpmock.GetTotalCallCount())
	assert.Equal(t, 3, b.Len())

	b.Add(ctx, "cam1", det)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, map[string]int{"cam1": 3}, received())
	assert.Equal(t, 1, b.Len())
}

func TestBuffer_Flush(t *testing.T) {
	r := setupReporter(t, logger.NewDiscard())
	received := batchRecorder(t)
	b := NewBuffer(r, 0)
	ctx := context.Background()

	b.Flush(ctx)
	assert.Zero(t, httpmock.GetTotalCallCount(), "empty buffer sends nothing")

	b.Add(ctx, "cam1", model.Detection{Label: "a"})
	b.Add(ctx, "cam2", model.Detection{Label: "b"}, model.Detection{Label: "c"})
	b.Flush(ctx)

	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.Equal(t, map[string]int{"cam1": 1, "cam2": 2}, received())
	assert.Zero(t, b.Len())
}

func TestBuffer_FailedFlushDropsDetections(t *testing.T) {
	r := setupReporter(t, logger.NewDiscard())
	httpmock.RegisterResponder(http.MethodPost, testEndpoint, httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	b := NewBuffer(r, 10)
	ctx := context.Background()

	b.Add(ctx, "cam1", model.Detection{Label: "a"})
	b.Flush(ctx)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Zero(t, b.Len())
}

func TestBuffer_RunFlushesOnTickAndStop(t *testing.T) {
	r := setupReporter(t, logger.NewDiscard())
	received := batchRecorder(t)
	b := NewBuffer(r, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	b.Add(context.Background(), "cam1", model.Detection{Label: "a"})
	require.Eventually(t, func() bool { return received()["cam1"] == 1 }, time.Second, 5*time.Millisecond)

	b.Add(context.Background(), "cam1", model.Detection{Label: "b"})
	cancel()
	<-done
	assert.Equal(t, 2, received()["cam1"], "pending detections are flushed on stop")
}
