package h2gate

import (
	"context"
	"fmt"

	"github.com/kbergstrom/h2gate/internal/h2"
	"github.com/kbergstrom/h2gate/internal/mux"
	"github.com/kbergstrom/h2gate/internal/stream"
	"github.com/kbergstrom/h2gate/internal/tlsconf"
)

// Server represents a server instance supporting HTTP/1.1 and/or HTTP/2,
// optionally TLS-terminated with ALPN protocol negotiation.
type Server struct {
	config       Config
	handler      Handler
	transport    *mux.Server
	tlsTransport *mux.TLSServer
}

// New creates a new Server with the provided configuration.
func New(config Config) *Server {
	if err := config.Validate(); err != nil {
		panic(err)
	}

	return &Server{
		config: config,
	}
}

// NewWithDefaults creates a new Server with default configuration.
func NewWithDefaults() *Server {
	return New(DefaultConfig())
}

// Handler sets the request handler and returns the server for method chaining.
func (s *Server) Handler(handler Handler) *Server {
	s.handler = handler
	return s
}

// ListenAndServe sets the handler and starts the server.
func (s *Server) ListenAndServe(handler Handler) error {
	s.handler = handler
	return s.Start()
}

// Start begins accepting HTTP/1.1 and/or HTTP/2 connections, TLS-terminated
// with ALPN when the configuration enables it.
func (s *Server) Start() error {
	if s.handler == nil {
		return fmt.Errorf("handler not set")
	}

	streamHandler := &streamHandlerAdapter{handler: s.handler}

	engineCfg := h2.Config{
		MaxConcurrentStreams: s.config.MaxConcurrentStreams,
		MaxFrameSize:         s.config.MaxFrameSize,
		InitialWindowSize:    s.config.InitialWindowSize,
		HeaderTableSize:      s.config.HeaderTableSize,
		MaxHeaderListSize:    s.config.MaxHeadersSize,
	}

	if s.config.TLSEnabled {
		tlsCfg, err := tlsconf.Build(tlsconf.Config{
			CertFile: s.config.TLSCertFile,
			KeyFile:  s.config.TLSKeyFile,
		})
		if err != nil {
			return err
		}
		s.tlsTransport = mux.NewTLSServer(streamHandler, mux.TLSConfig{
			Addr:        s.config.Addr,
			TLS:         tlsCfg,
			Logger:      s.config.Logger,
			Engine:      engineCfg,
			MaxBodySize: s.config.MaxBodySize,
		})
		return s.tlsTransport.Start()
	}

	s.transport = mux.NewServer(streamHandler, mux.Config{
		Addr:                 s.config.Addr,
		Multicore:            s.config.Multicore,
		NumEventLoop:         s.config.NumEventLoop,
		ReusePort:            s.config.ReusePort,
		Logger:               s.config.Logger,
		MaxConcurrentStreams: s.config.MaxConcurrentStreams,
		MaxFrameSize:         s.config.MaxFrameSize,
		InitialWindowSize:    s.config.InitialWindowSize,
		HeaderTableSize:      s.config.HeaderTableSize,
		MaxHeaderListSize:    s.config.MaxHeadersSize,
		MaxConnections:       s.config.MaxConnections,
		MaxBodySize:          s.config.MaxBodySize,
		EnableH1:             s.config.EnableH1,
		EnableH2:             s.config.EnableH2,
	})

	return s.transport.Start()
}

// Stop shuts down the server. On the cleartext listener it sends a GOAWAY on
// every open HTTP/2 connection as part of the shutdown; with TLSEnabled it
// only closes the listener, and open connections receive no GOAWAY.
func (s *Server) Stop(ctx context.Context) error {
	if s.transport != nil {
		return s.transport.Stop(ctx)
	}
	if s.tlsTransport != nil {
		return s.tlsTransport.Stop(ctx)
	}
	return nil
}

// streamHandlerAdapter bridges the engine-level h2.Handler contract to the
// request-scoped Handler interface applications implement.
type streamHandlerAdapter struct {
	handler Handler
}

func (a *streamHandlerAdapter) HandleStream(ctx context.Context, s *stream.Stream) error {
	writeResponse := func(streamID uint32, status int, headers [][2]string, body []byte, endStream bool) error {
		if s.Writer == nil {
			return fmt.Errorf("no response writer available")
		}
		return s.Writer.WriteResponse(streamID, status, headers, body, endStream)
	}

	c := newContext(ctx, s, writeResponse)
	if err := a.handler.ServeHTTP2(c); err != nil {
		return err
	}
	return c.finish()
}
