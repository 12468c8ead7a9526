package h2

import (
	"io"
	"sync"

	"github.com/panjf2000/gnet/v2"
)

// connWriter adapts a gnet.Conn into an io.Writer, batching frame writes
// through AsyncWritev so the event loop goroutine never blocks on the
// socket. Mirrors the batching discipline the rest of the pack's gnet
// transport code uses: writes queue while one AsyncWritev is already
// inflight, and are flushed as a single vectorized call once it completes.
type connWriter struct {
	mu       sync.Mutex
	conn     gnet.Conn
	pending  [][]byte
	queued   [][]byte
	inflight bool
}

func newConnWriter(c gnet.Conn) *connWriter {
	return &connWriter{conn: c}
}

// NewConnWriter exposes the gnet-backed io.Writer adapter for callers (such
// as internal/mux) that construct a Connection themselves instead of going
// through Server.
func NewConnWriter(c gnet.Conn) io.Writer {
	return newConnWriter(c)
}

// Write implements io.Writer. connWriter copies p before queuing, so the
// caller may reuse p as soon as Write returns.
func (w *connWriter) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)

	w.mu.Lock()
	if w.inflight {
		w.queued = append(w.queued, cp)
		w.mu.Unlock()
		return len(p), nil
	}
	w.pending = append(w.pending, cp)
	batch := w.pending
	w.pending = nil
	w.inflight = true
	w.mu.Unlock()

	if err := w.flush(batch); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *connWriter) flush(batch [][]byte) error {
	return w.conn.AsyncWritev(batch, func(_ gnet.Conn, _ error) error {
		w.mu.Lock()
		next := w.queued
		w.queued = nil
		if len(next) == 0 {
			w.inflight = false
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()
		return w.flush(next)
	})
}
