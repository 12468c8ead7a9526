// Package tlsconf builds the *tls.Config used by the encrypted listener:
// ALPN negotiation between h2 and http/1.1, and certificate loading from
// disk. No example repo in the retrieval pack terminates TLS itself, so this
// package is grounded directly on the standard library rather than an
// ecosystem wrapper.
package tlsconf

import (
	"crypto/tls"
	"fmt"
)

// Config carries the on-disk certificate/key pair used to build a
// *tls.Config.
type Config struct {
	CertFile string
	KeyFile  string
}

// Build loads the certificate/key pair and returns a *tls.Config offering
// "h2" over "http/1.1" via ALPN, matching RFC 7540 section 3.3.
func Build(cfg Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: loading certificate pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
