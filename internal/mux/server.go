// Package mux provides protocol multiplexing for HTTP/1.1 and HTTP/2 on a
// single cleartext port, detecting the protocol from the connection's first
// bytes (client preface vs. an HTTP/1.1 request line) and routing
// accordingly. The TLS-terminated listener (internal/mux.TLSServer) performs
// the equivalent dispatch via ALPN instead of byte sniffing.
package mux

import (
	"bytes"
	"context"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbergstrom/h2gate/internal/h1"
	"github.com/kbergstrom/h2gate/internal/h2"
	"github.com/panjf2000/gnet/v2"
)

const (
	// http2Preface is the HTTP/2 connection preface.
	http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"
	// minDetectBytes is the number of bytes needed to tell "GET ", "POST",
	// "PRI " and similar prefixes apart.
	minDetectBytes = 4
)

// Server is a multiplexing gnet EventHandler that routes connections to
// HTTP/1.1 or HTTP/2 based on protocol detection on the initial bytes.
type Server struct {
	gnet.BuiltinEventEngine

	handler     h2.Handler
	connections sync.Map // map[gnet.Conn]*connSession
	ctx         context.Context
	cancel      context.CancelFunc

	addr          string
	multicore     bool
	numEventLoop  int
	reusePort     bool
	logger        *log.Logger
	engine        gnet.Engine
	engineStarted bool

	enableH1       bool
	enableH2       bool
	maxConnections uint32
	activeConns    uint32

	h2Cfg       h2.Config
	h1MaxBody   int64

	connectionQueue chan gnet.Conn
	queueSize       int
	queueMu         sync.RWMutex
}

const verboseConnLogging = false

type silentGnetLogger struct{}

func (silentGnetLogger) Debugf(_ string, _ ...any) {}
func (silentGnetLogger) Infof(_ string, _ ...any)  {}
func (silentGnetLogger) Warnf(_ string, _ ...any)  {}
func (silentGnetLogger) Errorf(_ string, _ ...any) {}
func (silentGnetLogger) Fatalf(_ string, _ ...any) {}

// connSession tracks per-connection state during protocol detection.
type connSession struct {
	buffer   []byte
	detected bool
	isH2     bool
	h1Conn   *h1.Connection
	h2Conn   *h2.Connection
}

// Config defines the configuration options for the protocol multiplexer.
type Config struct {
	Addr                 string
	Multicore            bool
	NumEventLoop         int
	ReusePort            bool
	Logger               *log.Logger
	MaxConcurrentStreams uint32
	MaxFrameSize         uint32
	InitialWindowSize    int32
	HeaderTableSize      uint32
	MaxHeaderListSize    uint32
	MaxConnections       uint32
	MaxBodySize          int64
	EnableH1             bool
	EnableH2             bool
}

// NewServer creates a new multiplexing server.
func NewServer(handler h2.Handler, config Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if !config.EnableH1 && !config.EnableH2 {
		config.EnableH2 = true
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10000
	}

	engineCfg := h2.DefaultConfig()
	if config.MaxConcurrentStreams > 0 {
		engineCfg.MaxConcurrentStreams = config.MaxConcurrentStreams
	}
	if config.MaxFrameSize > 0 {
		engineCfg.MaxFrameSize = config.MaxFrameSize
	}
	if config.InitialWindowSize > 0 {
		engineCfg.InitialWindowSize = config.InitialWindowSize
	}
	if config.HeaderTableSize > 0 {
		engineCfg.HeaderTableSize = config.HeaderTableSize
	}
	if config.MaxHeaderListSize > 0 {
		engineCfg.MaxHeaderListSize = config.MaxHeaderListSize
	}
	if config.MaxBodySize > 0 {
		engineCfg.MaxBodySize = config.MaxBodySize
	}

	return &Server{
		handler:         handler,
		ctx:             ctx,
		cancel:          cancel,
		addr:            config.Addr,
		multicore:       config.Multicore,
		numEventLoop:    config.NumEventLoop,
		reusePort:       config.ReusePort,
		logger:          config.Logger,
		enableH1:        config.EnableH1,
		enableH2:        config.EnableH2,
		maxConnections:  config.MaxConnections,
		h2Cfg:           engineCfg,
		h1MaxBody:       config.MaxBodySize,
		connectionQueue: make(chan gnet.Conn, config.MaxConnections/10+1),
		queueSize:       int(config.MaxConnections/10) + 1,
	}
}

// Start starts the multiplexing server.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.multicore),
		gnet.WithReusePort(s.reusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithSocketRecvBuffer(64 << 20),
		gnet.WithSocketSendBuffer(64 << 20),
		gnet.WithTCPKeepAlive(time.Minute * 30),
		gnet.WithLogger(silentGnetLogger{}),
		gnet.WithReadBufferCap(1024 << 10),
		gnet.WithWriteBufferCap(1024 << 10),
		gnet.WithTicker(true),
		gnet.WithLoadBalancing(gnet.RoundRobin),
		gnet.WithNumEventLoop(runtime.NumCPU()),
	}
	if s.numEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.numEventLoop))
	}

	var protocols string
	switch {
	case s.enableH1 && s.enableH2:
		protocols = "HTTP/1.1 and HTTP/2"
	case s.enableH1:
		protocols = "HTTP/1.1"
	default:
		protocols = "HTTP/2"
	}
	s.logger.Printf("starting server on %s (%s, cleartext)", s.addr, protocols)

	go func() {
		_ = gnet.Run(s, "tcp://"+s.addr, options...)
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Println("initiating graceful shutdown")
	s.cancel()

	s.connections.Range(func(key, value interface{}) bool {
		session := value.(*connSession)
		if session.h2Conn != nil {
			_ = session.h2Conn.Shutdown("server shutting down")
		}
		return true
	})

	if s.engineStarted {
		if err := s.engine.Stop(ctx); err != nil {
			s.logger.Printf("error stopping gnet engine: %v", err)
			return err
		}
	}

	s.logger.Println("server shutdown complete")
	return nil
}

// OnBoot is called when the server is ready to accept connections.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.engineStarted = true
	go s.processConnectionQueue()
	return gnet.None
}

// OnOpen is called when a new connection is opened.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	currentConns := atomic.LoadUint32(&s.activeConns)
	if currentConns >= s.maxConnections {
		s.queueMu.RLock()
		queueLen := len(s.connectionQueue)
		s.queueMu.RUnlock()

		if queueLen < s.queueSize {
			select {
			case s.connectionQueue <- c:
				return nil, gnet.None
			default:
			}
		}

		s.logger.Printf("connection rejected from %s: too many connections (%d/%d)",
			c.RemoteAddr().String(), currentConns, s.maxConnections)
		return []byte(serviceUnavailableResponse), gnet.Close
	}

	atomic.AddUint32(&s.activeConns, 1)
	s.connections.Store(c, &connSession{buffer: make([]byte, 0, minDetectBytes)})
	return nil, gnet.None
}

func (s *Server) processConnectionQueue() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case queuedConn := <-s.connectionQueue:
			if atomic.LoadUint32(&s.activeConns) < s.maxConnections {
				atomic.AddUint32(&s.activeConns, 1)
				s.connections.Store(queuedConn, &connSession{buffer: make([]byte, 0, minDetectBytes)})
			} else {
				_ = queuedConn.Close()
			}
		}
	}
}

// OnClose is called when a connection is closed.
func (s *Server) OnClose(c gnet.Conn, _ error) gnet.Action {
	s.connections.Delete(c)
	atomic.AddUint32(&s.activeConns, ^uint32(0))
	return gnet.None
}

// OnTraffic is called when data is received on a connection.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	sessionValue, ok := s.connections.Load(c)
	if !ok {
		_ = c.AsyncWrite([]byte(badRequestResponse), closeAfterWrite)
		return gnet.None
	}
	session := sessionValue.(*connSession)

	if !session.detected {
		return s.detectAndDispatch(c, session)
	}

	buf, err := c.Next(-1)
	if err != nil {
		return gnet.Close
	}
	if len(buf) == 0 {
		return gnet.None
	}

	if session.isH2 && session.h2Conn != nil {
		if err := session.h2Conn.HandleData(s.ctx, buf); err != nil {
			s.logger.Printf("h2 data error: %v", err)
		}
		if session.h2Conn.Closed() {
			return gnet.Close
		}
		return gnet.None
	}

	if !session.isH2 && session.h1Conn != nil {
		if err := session.h1Conn.HandleData(buf); err != nil {
			if err.Error() == "connection close requested" {
				return gnet.Close
			}
			s.logger.Printf("h1 data error: %v", err)
			_ = c.AsyncWrite([]byte(badRequestResponse), closeAfterWrite)
		}
	}

	return gnet.None
}

// detectAndDispatch buffers incoming bytes until the protocol can be
// determined, then creates the matching Connection and hands off the
// buffered prefix.
func (s *Server) detectAndDispatch(c gnet.Conn, session *connSession) gnet.Action {
	buf, err := c.Next(-1)
	if err != nil {
		_ = c.AsyncWrite([]byte(badRequestResponse), closeAfterWrite)
		return gnet.None
	}
	if len(buf) == 0 {
		return gnet.None
	}
	session.buffer = append(session.buffer, buf...)

	if len(session.buffer) < minDetectBytes {
		return gnet.None
	}

	mightBeH2 := bytes.HasPrefix(session.buffer, []byte("PRI "))
	isFullH2 := len(session.buffer) >= len(http2Preface) && bytes.HasPrefix(session.buffer, []byte(http2Preface))
	isH1 := isLikelyH1Request(session.buffer)

	switch {
	case isFullH2:
		return s.dispatchH2(c, session)
	case isH1:
		return s.dispatchH1(c, session)
	case mightBeH2 && len(session.buffer) < len(http2Preface):
		// Wait for the rest of the preface, unless it has already deviated.
		if bytes.HasPrefix([]byte(http2Preface), session.buffer) {
			return gnet.None
		}
		return s.dispatchH2(c, session) // invalid preface; let the engine emit GOAWAY
	default:
		return s.dispatchH2(c, session) // neither preface nor request line; treat as invalid H2 preface
	}
}

func isLikelyH1Request(buf []byte) bool {
	switch buf[0] {
	case 'G':
		return bytes.HasPrefix(buf, []byte("GET "))
	case 'P':
		return bytes.HasPrefix(buf, []byte("POST ")) || bytes.HasPrefix(buf, []byte("PUT ")) || bytes.HasPrefix(buf, []byte("PATCH "))
	case 'H':
		return bytes.HasPrefix(buf, []byte("HEAD "))
	case 'D':
		return bytes.HasPrefix(buf, []byte("DELETE "))
	case 'O':
		return bytes.HasPrefix(buf, []byte("OPTIONS "))
	case 'T':
		return bytes.HasPrefix(buf, []byte("TRACE "))
	case 'C':
		return bytes.HasPrefix(buf, []byte("CONNECT "))
	}
	return false
}

func (s *Server) dispatchH2(c gnet.Conn, session *connSession) gnet.Action {
	if !s.enableH2 {
		_ = c.AsyncWrite([]byte(badRequestResponse), closeAfterWrite)
		return gnet.None
	}
	session.detected = true
	session.isH2 = true
	session.h2Conn = h2.NewConnection(h2.NewConnWriter(c), s.handler, s.h2Cfg, s.logger)

	buffered := session.buffer
	session.buffer = nil
	if err := session.h2Conn.HandleData(s.ctx, buffered); err != nil {
		s.logger.Printf("h2 preface error: %v", err)
	}
	if session.h2Conn.Closed() {
		time.AfterFunc(5*time.Millisecond, func() { _ = c.Close() })
	}
	return gnet.None
}

func (s *Server) dispatchH1(c gnet.Conn, session *connSession) gnet.Action {
	if !s.enableH1 {
		_ = c.AsyncWrite([]byte(badRequestResponse), closeAfterWrite)
		return gnet.None
	}
	session.detected = true
	session.isH2 = false
	session.h1Conn = h1.NewConnection(s.ctx, c, s.handler, s.logger, s.h1MaxBody)

	buffered := session.buffer
	session.buffer = nil
	if err := session.h1Conn.HandleData(buffered); err != nil {
		if err.Error() != "connection close requested" {
			s.logger.Printf("h1 preface error: %v", err)
			_ = c.AsyncWrite([]byte(badRequestResponse), closeAfterWrite)
		}
	}
	return gnet.None
}

func closeAfterWrite(c gnet.Conn, _ error) error {
	return c.Close()
}

const (
	badRequestResponse = "HTTP/1.1 400 Bad Request\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 11\r\n" +
		"Connection: close\r\n" +
		"\r\n" +
		"Bad Request"
	serviceUnavailableResponse = "HTTP/1.1 503 Service Unavailable\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 19\r\n" +
		"Connection: close\r\n" +
		"\r\n" +
		"Service Unavailable"
)
