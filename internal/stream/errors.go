package stream

import "github.com/kbergstrom/h2gate/internal/frame"

// StreamError is a recoverable error scoped to a single stream: the engine
// responds with RST_STREAM on that stream and the connection continues.
type StreamError struct {
	StreamID uint32
	Code     frame.ErrCode
	Reason   string
}

func (e *StreamError) Error() string { return e.Reason }

// ConnectionError terminates the whole connection: the engine responds with
// GOAWAY carrying the last processed stream id and closes after the write
// drains.
type ConnectionError struct {
	Code   frame.ErrCode
	Reason string
}

func (e *ConnectionError) Error() string { return e.Reason }
