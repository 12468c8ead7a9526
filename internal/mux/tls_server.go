package mux

import (
	"context"
	"crypto/tls"
	"log"
	"net"

	"github.com/kbergstrom/h2gate/internal/h1"
	"github.com/kbergstrom/h2gate/internal/h2"
)

// TLSServer terminates TLS and dispatches each connection to the HTTP/2 or
// HTTP/1.1 engine based on the ALPN result, one goroutine per connection.
// gnet's reactor model has no hook for wrapping an accepted socket in
// crypto/tls, so the encrypted listener uses net.Listener directly instead.
type TLSServer struct {
	addr      string
	tlsConfig *tls.Config
	handler   h2.Handler
	logger    *log.Logger
	h2Cfg     h2.Config
	maxBody   int64

	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
}

// TLSConfig bundles the options needed to construct a TLSServer.
type TLSConfig struct {
	Addr        string
	TLS         *tls.Config
	Logger      *log.Logger
	Engine      h2.Config
	MaxBodySize int64
}

// NewTLSServer creates a TLS-terminated server.
func NewTLSServer(handler h2.Handler, cfg TLSConfig) *TLSServer {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h2Cfg := cfg.Engine
	if cfg.MaxBodySize > 0 {
		h2Cfg.MaxBodySize = cfg.MaxBodySize
	}
	return &TLSServer{
		addr:      cfg.Addr,
		tlsConfig: cfg.TLS,
		handler:   handler,
		logger:    cfg.Logger,
		h2Cfg:     h2Cfg,
		maxBody:   cfg.MaxBodySize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start accepts connections in the background until Stop is called.
func (s *TLSServer) Start() error {
	ln, err := tls.Listen("tcp", s.addr, s.tlsConfig)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Printf("starting server on %s (TLS, ALPN h2/http1.1)", s.addr)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					s.logger.Printf("accept error: %v", err)
					continue
				}
			}
			go s.serve(conn)
		}
	}()
	return nil
}

// Stop closes the listener, interrupting Accept.
func (s *TLSServer) Stop(_ context.Context) error {
	s.cancel()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *TLSServer) serve(conn net.Conn) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		_ = conn.Close()
		return
	}
	if err := tlsConn.HandshakeContext(s.ctx); err != nil {
		_ = conn.Close()
		return
	}

	switch tlsConn.ConnectionState().NegotiatedProtocol {
	case "h2":
		s.serveH2(tlsConn)
	default:
		h1.ServeConn(s.ctx, tlsConn, s.handler, s.logger, s.maxBody)
	}
}

func (s *TLSServer) serveH2(conn net.Conn) {
	defer conn.Close()
	c := h2.NewConnection(conn, s.handler, s.h2Cfg, s.logger)
	buf := make([]byte, 64<<10)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if err := c.HandleData(s.ctx, buf[:n]); err != nil {
				s.logger.Printf("h2 data error: %v", err)
				return
			}
			if c.Closed() {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
