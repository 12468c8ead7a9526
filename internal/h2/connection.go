// Package h2 implements the HTTP/2 connection engine: preface handshake,
// frame dispatch, CONTINUATION reassembly, header validation, content-length
// reconciliation, and the SETTINGS/PING/GOAWAY/PRIORITY/RST_STREAM control
// flow, built on internal/frame and internal/hpack.
package h2

import (
	"bytes"
	"context"
	"io"
	"log"

	"github.com/kbergstrom/h2gate/internal/frame"
	"github.com/kbergstrom/h2gate/internal/hpack"
	"github.com/kbergstrom/h2gate/internal/stream"
)

// ClientPreface is the 24-octet connection preface every HTTP/2 client must
// send before any frame (RFC 7540 section 3.5).
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Handler processes a fully-assembled request stream and is responsible for
// writing the response via s.Writer before returning.
type Handler interface {
	HandleStream(ctx context.Context, s *stream.Stream) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, s *stream.Stream) error

// HandleStream calls f.
func (f HandlerFunc) HandleStream(ctx context.Context, s *stream.Stream) error { return f(ctx, s) }

// Config carries the connection-engine-level settings the mux/server layer
// resolves from pkg/h2gate.Config before constructing a Connection.
type Config struct {
	MaxConcurrentStreams uint32
	MaxFrameSize         uint32
	InitialWindowSize    int32
	HeaderTableSize      uint32
	MaxHeaderListSize    uint32
	MaxBodySize          int64
}

// DefaultConfig returns the engine defaults: the RFC 7540 default frame size
// and header table size, 100 concurrent streams, and local limits of 1 MiB
// for the initial window and the header list and 10 MiB for a request body.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentStreams: stream.DefaultMaxConcurrentStreams,
		MaxFrameSize:         frame.DefaultMaxFrameSize,
		InitialWindowSize:    1 << 20,
		HeaderTableSize:      4096,
		MaxHeaderListSize:    1 << 20,
		MaxBodySize:          10 << 20,
	}
}

// pendingHeaders accumulates HEADERS + CONTINUATION fragments for a stream
// until END_HEADERS arrives. Per RFC 7540 section 4.3, no other frame may be
// interleaved on the connection while this is in progress.
type pendingHeaders struct {
	streamID  uint32
	endStream bool
	block     bytes.Buffer
	isTrailer bool
}

// Connection is one HTTP/2 connection's engine state: frame codec, HPACK
// codec, stream table, and the outbound frame writer.
type Connection struct {
	out    io.Writer
	framer *frame.Writer
	logger *log.Logger

	parser   *frame.Parser
	hpackEnc *hpack.Encoder
	hpackDec *hpack.Decoder

	streams *stream.Manager
	handler Handler

	prefaceRemaining string

	cfg Config

	peerMaxFrameSize  uint32
	localMaxFrameSize uint32

	pending *pendingHeaders

	closed     bool
	goAwaySent bool
}

// NewConnection constructs a Connection whose outbound frames are written
// to out (typically a *connWriter wrapping a gnet.Conn).
func NewConnection(out io.Writer, handler Handler, cfg Config, logger *log.Logger) *Connection {
	if logger == nil {
		logger = log.Default()
	}
	maxFrameSize := cfg.MaxFrameSize
	if maxFrameSize < frame.MaxFrameSizeLowerBound || maxFrameSize > frame.MaxFrameSizeUpperBound {
		maxFrameSize = frame.DefaultMaxFrameSize
	}
	headerTableSize := int(cfg.HeaderTableSize)
	if headerTableSize <= 0 {
		headerTableSize = 4096
	}

	c := &Connection{
		out:               out,
		framer:            frame.NewWriter(out),
		logger:            logger,
		parser:            frame.NewParser(maxFrameSize),
		hpackEnc:          hpack.NewEncoder(headerTableSize),
		hpackDec:          hpack.NewDecoder(headerTableSize),
		streams:           stream.NewManager(cfg.MaxConcurrentStreams, cfg.InitialWindowSize, cfg.MaxBodySize),
		handler:           handler,
		prefaceRemaining:  ClientPreface,
		cfg:               cfg,
		peerMaxFrameSize:  frame.DefaultMaxFrameSize,
		localMaxFrameSize: maxFrameSize,
	}
	c.streams.ConnRecvWindow = stream.NewFlowWindow(cfg.InitialWindowSize)
	return c
}

// SendServerPreface writes the initial SETTINGS frame a server must send on
// connection establishment.
func (c *Connection) SendServerPreface() error {
	return c.framer.WriteSettings(
		frame.Setting{ID: frame.SettingHeaderTableSize, Value: c.cfg.HeaderTableSize},
		frame.Setting{ID: frame.SettingMaxConcurrentStreams, Value: c.cfg.MaxConcurrentStreams},
		frame.Setting{ID: frame.SettingMaxFrameSize, Value: c.cfg.MaxFrameSize},
		frame.Setting{ID: frame.SettingInitialWindowSize, Value: uint32(c.cfg.InitialWindowSize)},
		frame.Setting{ID: frame.SettingEnablePush, Value: 0},
	)
}

// HandleData feeds newly received bytes through the preface check and frame
// dispatch loop. It never blocks: responses are written via c.out, which is
// expected to be non-blocking (AsyncWritev-backed).
func (c *Connection) HandleData(ctx context.Context, data []byte) error {
	if c.closed {
		return nil
	}

	if c.prefaceRemaining != "" {
		n := len(c.prefaceRemaining)
		if len(data) < n {
			if !bytes.HasPrefix([]byte(c.prefaceRemaining), data) {
				return c.connectionError(frame.ErrCodeProtocol, "invalid connection preface")
			}
			c.prefaceRemaining = c.prefaceRemaining[len(data):]
			return nil
		}
		if string(data[:n]) != c.prefaceRemaining[:n] {
			return c.connectionError(frame.ErrCodeProtocol, "invalid connection preface")
		}
		c.prefaceRemaining = ""
		data = data[n:]
		if err := c.SendServerPreface(); err != nil {
			return err
		}
	}

	c.parser.Push(data)
	for {
		f, ok, err := c.parser.Next()
		if err != nil {
			if fse, isSize := err.(*frame.ErrFrameSizeExceeded); isSize {
				return c.connectionError(frame.ErrCodeFrameSize, fse.Error())
			}
			return c.connectionError(frame.ErrCodeProtocol, err.Error())
		}
		if !ok {
			return nil
		}
		if err := c.dispatch(ctx, f); err != nil {
			if serr, isStream := err.(*stream.StreamError); isStream {
				c.resetStream(serr.StreamID, serr.Code)
				continue
			}
			if cerr, isConn := err.(*stream.ConnectionError); isConn {
				return c.connectionError(frame.ErrCode(cerr.Code), cerr.Reason)
			}
			return c.connectionError(frame.ErrCodeInternal, err.Error())
		}
	}
}

// dispatch routes a single decoded frame to its handler. While a HEADERS
// block is awaiting CONTINUATION, only CONTINUATION frames (on the same
// stream) are permitted; anything else is a connection error.
func (c *Connection) dispatch(ctx context.Context, f frame.Frame) error {
	if c.pending != nil && f.Type != frame.TypeContinuation {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "frame interleaved during CONTINUATION sequence"}
	}

	switch f.Type {
	case frame.TypeHeaders:
		return c.handleHeaders(ctx, f)
	case frame.TypeContinuation:
		return c.handleContinuation(ctx, f)
	case frame.TypeData:
		return c.handleData(ctx, f)
	case frame.TypeSettings:
		return c.handleSettings(f)
	case frame.TypeWindowUpdate:
		return c.handleWindowUpdate(f)
	case frame.TypeRSTStream:
		return c.handleRSTStream(f)
	case frame.TypePriority:
		return c.handlePriority(f)
	case frame.TypePing:
		return c.handlePing(f)
	case frame.TypeGoAway:
		return c.handleGoAway(f)
	case frame.TypePushPromise:
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "PUSH_PROMISE not accepted from client"}
	default:
		// Unknown frame types are ignored per RFC 7540 section 4.1.
		return nil
	}
}

func (c *Connection) connectionError(code frame.ErrCode, reason string) error {
	c.logger.Printf("h2 connection error: %s", reason)
	lastID := c.streams.LastClientStream()
	_ = c.framer.WriteGoAway(lastID, code, []byte(reason))
	c.closed = true
	return &stream.ConnectionError{Code: code, Reason: reason}
}

func (c *Connection) resetStream(streamID uint32, code frame.ErrCode) {
	if s, ok := c.streams.Get(streamID); ok {
		s.OnSendRSTStream()
	}
	_ = c.framer.WriteRSTStream(streamID, code)
	c.streams.Delete(streamID)
}

// Shutdown sends a GOAWAY advertising no further streams will be accepted,
// used by the server's graceful-shutdown drain.
func (c *Connection) Shutdown(reason string) error {
	if c.goAwaySent {
		return nil
	}
	c.goAwaySent = true
	lastID := c.streams.LastClientStream()
	c.streams.MarkGoAwaySent(lastID)
	return c.framer.WriteGoAway(lastID, frame.ErrCodeNo, []byte(reason))
}

// ActiveStreamCount reports the number of in-flight streams, used by the
// server to decide when a shutdown drain is complete.
func (c *Connection) ActiveStreamCount() uint32 {
	return c.streams.ActiveCount()
}

// Closed reports whether this connection has encountered a fatal error and
// sent GOAWAY.
func (c *Connection) Closed() bool { return c.closed }
