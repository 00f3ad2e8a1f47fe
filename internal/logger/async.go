package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops a buffered handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// Overflow policies for a full buffer.
const (
	OverflowDrop  = "drop"
	OverflowBlock = "block"
)

// BufferOptions sizes a BufferedHandler.
type BufferOptions struct {
	Size     int
	Workers  int
	Overflow string // OverflowDrop or OverflowBlock
}

// bufferState is shared by a handler and every handler derived from it via
// WithAttrs or WithGroup.
type bufferState struct {
	ch      chan queued
	block   bool
	wg      sync.WaitGroup
	mu      sync.RWMutex // guards closed against sends racing Close
	closed  bool
	dropped atomic.Int64
}

type queued struct {
	inner slog.Handler
	rec   slog.Record
}

// BufferedHandler hands records to a pool of workers that write them to the
// wrapped handler. When the buffer is full the record is either dropped and
// counted or the caller waits, depending on BufferOptions.Overflow.
type BufferedHandler struct {
	inner slog.Handler
	state *bufferState
}

// NewBufferedHandler starts opts.Workers writers draining a buffer of
// opts.Size records. Non-positive sizes fall back to one.
func NewBufferedHandler(inner slog.Handler, opts BufferOptions) *BufferedHandler {
	st := &bufferState{
		ch:    make(chan queued, max(opts.Size, 1)),
		block: opts.Overflow == OverflowBlock,
	}
	for range max(opts.Workers, 1) {
		st.wg.Add(1)
		go st.drain()
	}
	return &BufferedHandler{inner: inner, state: st}
}

func (s *bufferState) drain() {
	defer s.wg.Done()
	for q := range s.ch {
		_ = q.inner.Handle(context.Background(), q.rec)
	}
}

// Enabled delegates to the wrapped handler.
func (h *BufferedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues rec. In block mode it waits for room until ctx ends; records
// that cannot be queued are counted as dropped.
func (h *BufferedHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	st := h.state
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.closed {
		st.dropped.Add(1)
		return nil
	}

	q := queued{inner: h.inner, rec: rec.Clone()}
	if st.block {
		select {
		case st.ch <- q:
		case <-ctx.Done():
			st.dropped.Add(1)
		}
		return nil
	}
	select {
	case st.ch <- q:
	default:
		st.dropped.Add(1)
	}
	return nil
}

// WithAttrs shares the buffer and workers with h.
func (h *BufferedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferedHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

// WithGroup shares the buffer and workers with h.
func (h *BufferedHandler) WithGroup(name string) slog.Handler {
	return &BufferedHandler{inner: h.inner.WithGroup(name), state: h.state}
}

// Dropped returns how many records never reached the wrapped handler.
func (h *BufferedHandler) Dropped() int64 {
	return h.state.dropped.Load()
}

// Close drains queued records and stops the workers. If anything was dropped
// a final warning with the count is written directly. Close is idempotent.
func (h *BufferedHandler) Close() {
	st := h.state
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return
	}
	st.closed = true
	close(st.ch)
	st.mu.Unlock()
	st.wg.Wait()

	if n := st.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "log records dropped", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}
