// Package h2gate provides a high-performance HTTP/1.1 and HTTP/2 server
// implementation for Go, with hand-rolled frame and HPACK codecs.
package h2gate

import (
	"io"
	"log"
	"time"
)

// Config holds the server configuration options for both HTTP/1.1 and HTTP/2.
type Config struct {
	Addr                 string        // Server address to bind to
	Multicore            bool          // Enable multicore mode for better performance
	NumEventLoop         int           // Number of event loops (0 for auto-detect)
	ReusePort            bool          // Enable SO_REUSEPORT for load balancing
	ReadTimeout          time.Duration // Stored only; Server sets no read deadline
	WriteTimeout         time.Duration // Stored only; Server sets no write deadline
	IdleTimeout          time.Duration // Stored only; Server does not close idle connections
	MaxHeaderBytes       int           // Stored only; the header block limit in force is MaxHeadersSize
	MaxConcurrentStreams uint32        // Maximum concurrent HTTP/2 streams
	MaxFrameSize         uint32        // Maximum HTTP/2 frame size
	InitialWindowSize    int32         // Initial HTTP/2 flow control window size
	HeaderTableSize      uint32        // HPACK dynamic table size
	MaxHeadersSize       uint32        // Maximum aggregate size of a request's header block
	MaxBodySize          int64         // Maximum aggregate request body size; 0 leaves HTTP/1.1 bodies unbounded and caps HTTP/2 bodies at 10 MiB
	MaxConnections       uint32        // Maximum concurrent cleartext connections (0 selects 10000); not applied when TLSEnabled
	Logger               *log.Logger   // Logger for server events
	DisableKeepAlive     bool          // Stored only; Server does not read it
	EnableH1             bool          // Enable HTTP/1.1 support (default true)
	EnableH2             bool          // Enable HTTP/2 support (default true)

	// TLSEnabled terminates TLS with ALPN negotiation between h2 and
	// http/1.1 instead of running the cleartext listener.
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
}

// newSilentLogger creates a silent logger that discards all output
func newSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Addr:                 ":8080",
		Multicore:            true,
		NumEventLoop:         0, // Auto-detect
		ReusePort:            true,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         30 * time.Second,
		IdleTimeout:          60 * time.Second,
		MaxHeaderBytes:       1 << 20, // 1 MB
		MaxConcurrentStreams: 100,
		MaxFrameSize:         16384,
		InitialWindowSize:    1 << 20,
		HeaderTableSize:      4096,
		MaxHeadersSize:       16 << 10,
		MaxBodySize:          10 << 20,
		Logger:               newSilentLogger(),
		DisableKeepAlive:     false,
		EnableH1:             true,
		EnableH2:             true,
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxFrameSize < 16384 {
		c.MaxFrameSize = 16384
	}
	if c.MaxFrameSize > (1<<24)-1 {
		c.MaxFrameSize = (1 << 24) - 1
	}
	if c.InitialWindowSize == 0 {
		c.InitialWindowSize = 1 << 20
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = 100
	}
	if c.HeaderTableSize == 0 {
		c.HeaderTableSize = 4096
	}
	if c.MaxHeadersSize == 0 {
		c.MaxHeadersSize = 16 << 10
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	// At least one protocol must be enabled
	if !c.EnableH1 && !c.EnableH2 {
		c.EnableH2 = true // Default to HTTP/2 if both disabled
	}
	if c.TLSEnabled && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return errTLSConfigIncomplete
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

var errTLSConfigIncomplete = configError("h2gate: TLSEnabled requires both TLSCertFile and TLSKeyFile")
