package reporter

import (
	"context"
	"sync"
	"time"

	"detectionserver/internal/model"
)

const (
	// DefaultBufferLimit is how many detections per source are held before an early flush.
	DefaultBufferLimit = 50
	// DefaultFlushInterval defines how often buffered detections are sent.
	DefaultFlushInterval = time.Second
)

// Buffer collects detections per source in memory and sends them as batches,
// either when a source reaches its limit or on the periodic flush.
type Buffer struct {
	reporter *Reporter
	limit    int
	mu       sync.Mutex
	pending  map[string][]model.Detection
}

// NewBuffer creates a Buffer in front of r. A non-positive limit uses DefaultBufferLimit.
func NewBuffer(r *Reporter, limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &Buffer{
		reporter: r,
		limit:    limit,
		pending:  make(map[string][]model.Detection),
	}
}

// Add queues detections for source and sends the source's batch once it is full.
func (b *Buffer) Add(ctx context.Context, source string, detections ...model.Detection) {
	b.mu.Lock()
	b.pending[source] = append(b.pending[source], detections...)
	var full []model.Detection
	if len(b.pending[source]) >= b.limit {
		full = b.pending[source]
		delete(b.pending, source)
	}
	b.mu.Unlock()

	if full != nil {
		b.reporter.Report(ctx, source, full)
	}
}

// Len returns the number of detections waiting to be sent.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, dets := range b.pending {
		n += len(dets)
	}
	return n
}

// Flush sends every pending batch and resets the buffer. Failures are logged
// by the reporter and the detections are dropped.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string][]model.Detection)
	b.mu.Unlock()

	sent := 0
	for source, dets := range pending {
		b.reporter.Report(ctx, source, dets)
		sent += len(dets)
	}
	if sent > 0 {
		b.reporter.logger.Info("Flushed %d detections from %d sources", sent, len(pending))
	}
}

// Run starts a ticker loop that flushes the buffer until ctx is canceled,
// then flushes once more with a fresh context.
func (b *Buffer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush(ctx)
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		}
	}
}
