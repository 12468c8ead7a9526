package stream

import (
	"sync"

	"github.com/kbergstrom/h2gate/internal/frame"
)

// DefaultMaxConcurrentStreams is applied when a Manager is created with 0.
const DefaultMaxConcurrentStreams = 100

// DefaultMaxBodySize is applied when a Manager is created with a
// non-positive max body size.
const DefaultMaxBodySize = 10 << 20

// Manager owns the stream table for one connection: id allocation,
// concurrency limits, the priority tree, and the connection-level flow
// control window.
type Manager struct {
	mu sync.RWMutex

	streams          map[uint32]*Stream
	lastClientStream uint32
	maxStreams       uint32
	activeCount      uint32

	initialSendWindow int32
	initialRecvWindow int32
	maxBodySize       int64

	ConnSendWindow *FlowWindow
	ConnRecvWindow *FlowWindow

	Priority *PriorityTree

	goAwaySent     bool
	lastAcceptedID uint32
}

// NewManager creates a stream table with the given concurrency limit and
// initial per-stream window sizes (mirroring the locally advertised
// SETTINGS_MAX_CONCURRENT_STREAMS / SETTINGS_INITIAL_WINDOW_SIZE).
func NewManager(maxStreams uint32, initialWindowSize int32, maxBodySize int64) *Manager {
	if maxStreams == 0 {
		maxStreams = DefaultMaxConcurrentStreams
	}
	if initialWindowSize <= 0 {
		initialWindowSize = DefaultInitialWindowSize
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Manager{
		streams:           make(map[uint32]*Stream),
		maxStreams:        maxStreams,
		initialSendWindow: initialWindowSize,
		initialRecvWindow: DefaultInitialWindowSize,
		maxBodySize:       maxBodySize,
		ConnSendWindow:    NewFlowWindow(DefaultInitialWindowSize),
		ConnRecvWindow:    NewFlowWindow(DefaultInitialWindowSize),
		Priority:          NewPriorityTree(),
	}
}

// CreateStream allocates and registers a new client-initiated stream. The
// caller must have already validated that id is odd and monotonically
// increasing relative to LastClientStream.
func (m *Manager) CreateStream(id uint32) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id <= m.lastClientStream {
		return nil, &ConnectionError{Code: 0x1, Reason: "stream id not monotonically increasing"}
	}
	if m.activeCount >= m.maxStreams {
		return nil, &StreamError{StreamID: id, Code: 0x7, Reason: "max concurrent streams exceeded"}
	}

	s := NewStream(id, m.initialSendWindow, m.initialRecvWindow, m.maxBodySize)
	m.streams[id] = s
	m.lastClientStream = id
	m.activeCount++
	return s, nil
}

// Get returns the stream for id, if known.
func (m *Manager) Get(id uint32) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[id]
	return s, ok
}

// Delete removes a stream from the table once fully closed, decrementing the
// active concurrency count. Safe to call more than once for the same id.
func (m *Manager) Delete(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[id]; ok {
		delete(m.streams, id)
		if m.activeCount > 0 {
			m.activeCount--
		}
		m.Priority.RemoveStream(id)
	}
}

// LastClientStream returns the highest client-initiated stream id seen,
// used as the GOAWAY last-stream-id value.
func (m *Manager) LastClientStream() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastClientStream
}

// ActiveCount returns the number of currently tracked streams.
func (m *Manager) ActiveCount() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCount
}

// ApplyInitialWindowSizeDelta adjusts every open stream's send window by
// delta (new - old), per RFC 7540 section 6.9.2, and updates the value used
// for subsequently created streams. If applying delta would push any
// existing stream's send window past MaxWindowSize, no stream is modified
// and a FLOW_CONTROL_ERROR connection error is returned, per section 6.9.2.
func (m *Manager) ApplyInitialWindowSizeDelta(delta int32, newValue int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.streams {
		if int64(s.SendWindow.Get())+int64(delta) > int64(MaxWindowSize) {
			return &ConnectionError{Code: frame.ErrCodeFlowControl, Reason: "SETTINGS_INITIAL_WINDOW_SIZE change overflows a stream send window"}
		}
	}

	m.initialSendWindow = newValue
	for _, s := range m.streams {
		s.SendWindow.ApplySettingsDelta(delta)
	}
	return nil
}

// IsIdle reports whether id has never been used by a client-initiated
// stream on this connection. RFC 7540's monotonic stream-id ordering means
// any id at or below the highest one seen was, at some point, opened; ids
// above it have never existed. This distinguishes idle streams (a
// PROTOCOL_ERROR connection error if referenced) from closed ones (a
// STREAM_CLOSED stream error) without needing an unbounded closed-id set.
func (m *Manager) IsIdle(id uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return id > m.lastClientStream
}

// MarkGoAwaySent records that GOAWAY has been sent, preventing creation of
// any further streams with id greater than lastAcceptedID.
func (m *Manager) MarkGoAwaySent(lastAcceptedID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goAwaySent = true
	m.lastAcceptedID = lastAcceptedID
}

// ShouldRefuse reports whether a newly arriving stream id must be refused
// because GOAWAY has already been sent.
func (m *Manager) ShouldRefuse(id uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.goAwaySent && id > m.lastAcceptedID
}

// Range calls f for every currently tracked stream. f must not mutate the
// Manager's table.
func (m *Manager) Range(f func(*Stream)) {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()
	for _, s := range streams {
		f(s)
	}
}
