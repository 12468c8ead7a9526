package h2

import (
	"context"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
)

// silentGnetLogger discards gnet's internal log output, matching the
// rest of this module's gnet server wiring.
type silentGnetLogger struct{}

func (silentGnetLogger) Debugf(_ string, _ ...any) {}
func (silentGnetLogger) Infof(_ string, _ ...any)  {}
func (silentGnetLogger) Warnf(_ string, _ ...any)  {}
func (silentGnetLogger) Errorf(_ string, _ ...any) {}
func (silentGnetLogger) Fatalf(_ string, _ ...any) {}

// ServerConfig configures the standalone HTTP/2-only gnet server. When h2
// and h1 share a port, internal/mux drives Connection directly instead of
// using this Server.
type ServerConfig struct {
	Addr           string
	Multicore      bool
	NumEventLoop   int
	ReusePort      bool
	Logger         *log.Logger
	MaxConnections uint32
	Engine         Config
}

// Server implements gnet.EventHandler, terminating HTTP/2-only connections.
type Server struct {
	gnet.BuiltinEventEngine

	handler        Handler
	ctx            context.Context
	cancel         context.CancelFunc
	logger         *log.Logger
	cfg            ServerConfig
	activeConns    uint32
	engine         gnet.Engine
	engineStarted  bool
}

// NewServer creates an HTTP/2 gnet server.
func NewServer(handler Handler, cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{handler: handler, ctx: ctx, cancel: cancel, logger: cfg.Logger, cfg: cfg}
}

// GetMaxConcurrentStreams returns the configured concurrency limit, used by
// internal/mux to size connections it creates directly.
func (s *Server) GetMaxConcurrentStreams() uint32 {
	return s.cfg.Engine.MaxConcurrentStreams
}

// Start runs the gnet engine in the background.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.cfg.Multicore),
		gnet.WithReusePort(s.cfg.ReusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithSocketRecvBuffer(64 << 20),
		gnet.WithSocketSendBuffer(64 << 20),
		gnet.WithTCPKeepAlive(30 * time.Minute),
		gnet.WithLogger(silentGnetLogger{}),
		gnet.WithReadBufferCap(1024 << 10),
		gnet.WithWriteBufferCap(1024 << 10),
		gnet.WithTicker(true),
		gnet.WithLoadBalancing(gnet.RoundRobin),
		gnet.WithNumEventLoop(runtime.NumCPU()),
	}
	if s.cfg.NumEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.cfg.NumEventLoop))
	}

	s.logger.Printf("starting HTTP/2 server on %s", s.cfg.Addr)
	go func() {
		_ = gnet.Run(s, "tcp://"+s.cfg.Addr, options...)
	}()
	s.engineStarted = true
	return nil
}

// Stop stops the gnet engine.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if s.engineStarted {
		return s.engine.Stop(ctx)
	}
	return nil
}

// OnBoot records the engine handle.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.engineStarted = true
	return gnet.None
}

// OnOpen creates a new Connection for the accepted socket.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if s.cfg.MaxConnections > 0 && atomic.LoadUint32(&s.activeConns) >= s.cfg.MaxConnections {
		return nil, gnet.Close
	}
	atomic.AddUint32(&s.activeConns, 1)
	conn := NewConnection(newConnWriter(c), s.handler, s.cfg.Engine, s.logger)
	c.SetContext(conn)
	return nil, gnet.None
}

// StoreConnection registers a pre-built Connection (used by internal/mux
// when it, not this Server, performed protocol detection).
func (s *Server) StoreConnection(c gnet.Conn, conn *Connection) {
	c.SetContext(conn)
}

// OnClose decrements the active connection count.
func (s *Server) OnClose(c gnet.Conn, _ error) gnet.Action {
	atomic.AddUint32(&s.activeConns, ^uint32(0))
	return gnet.None
}

// OnTraffic feeds received bytes into the connection's dispatch loop.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	ctx := c.Context()
	conn, ok := ctx.(*Connection)
	if !ok || conn == nil {
		return gnet.Close
	}

	buf, err := c.Next(-1)
	if err != nil || len(buf) == 0 {
		return gnet.None
	}

	if err := conn.HandleData(s.ctx, buf); err != nil {
		return gnet.Close
	}
	if conn.Closed() {
		return gnet.Close
	}
	return gnet.None
}
