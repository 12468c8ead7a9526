package stream

import (
	"bytes"
	"context"
	"sync"

	"github.com/kbergstrom/h2gate/internal/frame"
	"github.com/kbergstrom/h2gate/internal/hpack"
)

// ResponseWriter is the interface the connection engine implements so a
// Stream can push frames back out without this package depending on the
// transport.
type ResponseWriter interface {
	WriteResponse(streamID uint32, status int, headers [][2]string, body []byte, endStream bool) error
	WriteRSTStream(streamID uint32, code uint32) error
	IsClosed(streamID uint32) bool
}

// Stream holds all per-stream state: header/trailer fields, body
// accumulation, flow-control windows, and the state machine's current state.
type Stream struct {
	mu sync.Mutex

	ID    uint32
	state State

	Headers  []hpack.HeaderField
	Trailers []hpack.HeaderField

	Data *bytes.Buffer

	EndStreamReceived bool
	HeadersComplete   bool
	ClosedByReset     bool
	ResetCode         uint32

	// ContentLength is the declared content-length header value, or -1 if
	// absent. ReceivedBodyLen accumulates actual DATA bytes seen so far, for
	// reconciliation at end-of-stream.
	ContentLength   int64
	ReceivedBodyLen int64

	// maxBodySize is the server-configured ceiling on accumulated body bytes,
	// independent of (and enforced regardless of) any client-declared
	// content-length.
	maxBodySize int64

	SendWindow *FlowWindow
	RecvWindow *FlowWindow

	// OutboundPending holds response body bytes not yet sent because send
	// window credit ran out; flushed as WINDOW_UPDATE frames arrive.
	OutboundPending     []byte
	OutboundEndStream   bool
	OutboundHeadersSent bool

	Writer ResponseWriter

	Ctx    context.Context
	Cancel context.CancelFunc
}

// NewStream creates a stream in the idle state with the given initial
// send/receive window sizes.
func NewStream(id uint32, initialSendWindow, initialRecvWindow int32, maxBodySize int64) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		ID:            id,
		state:         StateIdle,
		Data:          new(bytes.Buffer),
		ContentLength: -1,
		maxBodySize:   maxBodySize,
		SendWindow:    NewFlowWindow(initialSendWindow),
		RecvWindow:    NewFlowWindow(initialRecvWindow),
		Ctx:           ctx,
		Cancel:        cancel,
	}
}

// State returns the stream's current state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition applies ev to the stream's state machine. Returns a
// *StreamError if the event is invalid in the current state.
func (s *Stream) transition(ev frameKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := next(s.state, ev)
	if !ok {
		code := frame.ErrCode(0x1)
		if s.state == StateHalfClosedRemote {
			code = frame.ErrCodeStreamClosed
		}
		return &StreamError{StreamID: s.ID, Code: code, Reason: "invalid state transition"}
	}
	s.state = ns
	return nil
}

// OnRecvHeaders applies the state transition for receiving a HEADERS frame.
func (s *Stream) OnRecvHeaders(endStream bool) error {
	if endStream {
		return s.transition(eventRecvHeadersEndStream)
	}
	return s.transition(eventRecvHeaders)
}

// OnSendHeaders applies the state transition for sending a HEADERS frame
// (the response).
func (s *Stream) OnSendHeaders(endStream bool) error {
	if endStream {
		return s.transition(eventSendHeadersEndStream)
	}
	return s.transition(eventSendHeaders)
}

// OnRecvData applies the state transition for receiving a DATA frame.
func (s *Stream) OnRecvData(endStream bool) error {
	if endStream {
		return s.transition(eventRecvDataEndStream)
	}
	return s.transition(eventRecvData)
}

// OnSendData applies the state transition for sending a DATA frame.
func (s *Stream) OnSendData() error {
	return s.transition(eventSendData)
}

// OnRecvRSTStream marks the stream closed due to a received RST_STREAM.
func (s *Stream) OnRecvRSTStream(code uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.ClosedByReset = true
	s.ResetCode = code
	s.Cancel()
}

// OnSendRSTStream marks the stream closed due to a locally-sent RST_STREAM.
func (s *Stream) OnSendRSTStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.Cancel()
}

// IsClosed reports whether the stream has reached the closed state.
func (s *Stream) IsClosed() bool {
	return s.State() == StateClosed
}

// AddRecvData accumulates a received DATA frame's payload and updates the
// reconciliation counter. Returns a *StreamError if the accumulated length
// would exceed a declared Content-Length, or REFUSED_STREAM if it would
// exceed the server's configured max body size regardless of what the client
// declared (or omitted).
func (s *Stream) AddRecvData(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReceivedBodyLen += int64(len(payload))
	if s.maxBodySize > 0 && s.ReceivedBodyLen > s.maxBodySize {
		return &StreamError{StreamID: s.ID, Code: frame.ErrCodeRefusedStream, Reason: "received data exceeds configured max body size"}
	}
	if s.ContentLength >= 0 && s.ReceivedBodyLen > s.ContentLength {
		return &StreamError{StreamID: s.ID, Code: 0x1, Reason: "received data exceeds declared content-length"}
	}
	s.Data.Write(payload)
	return nil
}

// CheckContentLengthOnEnd validates the final accumulated body length
// against a declared Content-Length once END_STREAM has been observed.
func (s *Stream) CheckContentLengthOnEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ContentLength >= 0 && s.ReceivedBodyLen != s.ContentLength {
		return &StreamError{StreamID: s.ID, Code: 0x1, Reason: "content-length mismatch at end of stream"}
	}
	return nil
}

// ForEachHeader calls f for every decoded request header field, in receipt
// order, including pseudo-headers.
func (s *Stream) ForEachHeader(f func(name, value string)) {
	for _, hf := range s.Headers {
		f(hf.Name, hf.Value)
	}
}

// Header returns the first value of the named header, or "" if absent.
// Name must already be lowercase.
func (s *Stream) Header(name string) string {
	for _, hf := range s.Headers {
		if hf.Name == name {
			return hf.Value
		}
	}
	return ""
}
