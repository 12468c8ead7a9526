// Package config loads h2gate server configuration from a JSON file, CLI
// flags, and environment variables, in that order of increasing precedence.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/kbergstrom/h2gate/pkg/h2gate"
)

// fileConfig mirrors the JSON config file shape. Unknown keys are ignored by
// encoding/json; type mismatches surface as a json.UnmarshalTypeError, which
// Load wraps into a human-readable message.
type fileConfig struct {
	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
		TLS  struct {
			Enabled  bool   `json:"enabled"`
			CertFile string `json:"cert_file"`
			KeyFile  string `json:"key_file"`
		} `json:"tls"`
	} `json:"server"`
	Limits struct {
		MaxBodySize    int64  `json:"max_body_size"`
		MaxHeadersSize uint32 `json:"max_headers_size"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"limits"`
	Logging struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"logging"`
}

// Flags holds the parsed CLI flag values before they're merged with the file
// and environment layers.
type Flags struct {
	ConfigPath     string
	Host           string
	Port           int
	TLSEnabled     bool
	TLSCertFile    string
	TLSKeyFile     string
	MaxBodySize    int64
	MaxHeadersSize uint32
	Timeout        time.Duration
	LogLevel       string
	LogFormat      string
}

// ParseFlags defines and parses the h2gate CLI flag set against args (pass
// os.Args[1:] in production, a literal slice in tests).
func ParseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("h2gate", flag.ContinueOnError)

	var f Flags
	fs.StringVar(&f.ConfigPath, "config", "", "path to a JSON configuration file")
	fs.StringVar(&f.Host, "host", "", "address to bind to, e.g. 0.0.0.0")
	fs.IntVar(&f.Port, "port", 0, "port to listen on")
	fs.BoolVar(&f.TLSEnabled, "tls-enabled", false, "terminate TLS with h2/http1.1 ALPN negotiation")
	fs.StringVar(&f.TLSCertFile, "tls-cert-file", "", "path to the TLS certificate file")
	fs.StringVar(&f.TLSKeyFile, "tls-key-file", "", "path to the TLS private key file")
	fs.Int64Var(&f.MaxBodySize, "max-body-size", 0, "maximum aggregate request body size in bytes")
	var maxHeaders int64
	fs.Int64Var(&maxHeaders, "max-headers-size", 0, "maximum aggregate request header block size in bytes")
	fs.DurationVar(&f.Timeout, "timeout", 0, "per-request handler timeout")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.LogFormat, "log-format", "", "log output format: text or json")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	f.MaxHeadersSize = uint32(maxHeaders)
	return f, nil
}

// Result is the fully resolved configuration: a ready-to-use h2gate.Config
// plus the logging knobs the library config itself doesn't own.
type Result struct {
	Server     h2gate.Config
	LogLevel   string
	LogFormat  string
	HandlerTTL time.Duration
}

// Load resolves a Result from defaults, an optional JSON file, CLI flags, and
// environment variables, applied in that precedence order (env overrides
// flags overrides file overrides defaults).
func Load(flags Flags) (Result, error) {
	res := Result{
		Server:    h2gate.DefaultConfig(),
		LogLevel:  "info",
		LogFormat: "text",
	}

	host, port := "", 8080

	if flags.ConfigPath != "" {
		fc, err := loadFile(flags.ConfigPath)
		if err != nil {
			return Result{}, err
		}
		if fc.Server.Host != "" {
			host = fc.Server.Host
		}
		if fc.Server.Port != 0 {
			port = fc.Server.Port
		}
		res.Server.TLSEnabled = fc.Server.TLS.Enabled
		res.Server.TLSCertFile = fc.Server.TLS.CertFile
		res.Server.TLSKeyFile = fc.Server.TLS.KeyFile
		if fc.Limits.MaxBodySize != 0 {
			res.Server.MaxBodySize = fc.Limits.MaxBodySize
		}
		if fc.Limits.MaxHeadersSize != 0 {
			res.Server.MaxHeadersSize = fc.Limits.MaxHeadersSize
		}
		if fc.Limits.TimeoutSeconds != 0 {
			res.HandlerTTL = time.Duration(fc.Limits.TimeoutSeconds) * time.Second
		}
		if fc.Logging.Level != "" {
			res.LogLevel = fc.Logging.Level
		}
		if fc.Logging.Format != "" {
			res.LogFormat = fc.Logging.Format
		}
	}

	if flags.Host != "" {
		host = flags.Host
	}
	if flags.Port != 0 {
		port = flags.Port
	}
	if flags.TLSEnabled {
		res.Server.TLSEnabled = true
	}
	if flags.TLSCertFile != "" {
		res.Server.TLSCertFile = flags.TLSCertFile
	}
	if flags.TLSKeyFile != "" {
		res.Server.TLSKeyFile = flags.TLSKeyFile
	}
	if flags.MaxBodySize != 0 {
		res.Server.MaxBodySize = flags.MaxBodySize
	}
	if flags.MaxHeadersSize != 0 {
		res.Server.MaxHeadersSize = flags.MaxHeadersSize
	}
	if flags.Timeout != 0 {
		res.HandlerTTL = flags.Timeout
	}
	if flags.LogLevel != "" {
		res.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		res.LogFormat = flags.LogFormat
	}

	applyEnv(&host, &port, &res)

	res.Server.Addr = fmt.Sprintf("%s:%d", host, port)
	if host == "" {
		res.Server.Addr = fmt.Sprintf(":%d", port)
	}

	res.Server.Logger = newLevelLogger(res.LogLevel)

	if err := res.Server.Validate(); err != nil {
		return Result{}, err
	}
	return res, nil
}

func loadFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("config: invalid JSON in %s: %w", path, err)
	}
	return fc, nil
}

func applyEnv(host *string, port *int, res *Result) {
	if v := os.Getenv("H2GATE_HOST"); v != "" {
		*host = v
	}
	if v := os.Getenv("H2GATE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			*port = p
		}
	}
	if v := os.Getenv("H2GATE_TLS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			res.Server.TLSEnabled = b
		}
	}
	if v := os.Getenv("H2GATE_TLS_CERT_FILE"); v != "" {
		res.Server.TLSCertFile = v
	}
	if v := os.Getenv("H2GATE_TLS_KEY_FILE"); v != "" {
		res.Server.TLSKeyFile = v
	}
	if v := os.Getenv("H2GATE_MAX_BODY_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			res.Server.MaxBodySize = n
		}
	}
	if v := os.Getenv("H2GATE_MAX_HEADERS_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			res.Server.MaxHeadersSize = uint32(n)
		}
	}
	if v := os.Getenv("H2GATE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			res.HandlerTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("H2GATE_LOG_LEVEL"); v != "" {
		res.LogLevel = v
	}
	if v := os.Getenv("H2GATE_LOG_FORMAT"); v != "" {
		res.LogFormat = v
	}
}

// newLevelLogger returns a *log.Logger that discards all output when level
// is "silent" and otherwise writes to stderr with standard timestamps.
// h2gate.Config only takes a single *log.Logger sink, so no other level
// filtering is applied.
func newLevelLogger(level string) *log.Logger {
	if level == "silent" {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}
