// Package tlsutil builds certificate pools for the TLS session to the hub.
package tlsutil

import (
	"crypto/x509"
	"fmt"
	"os"
)

// LoadCACert returns a certificate pool trusting the PEM file at path. With
// an empty path the system root pool is returned, which is what public hubs
// need.
func LoadCACert(path string) (*x509.CertPool, error) {
	if path == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system cert pool: %w", err)
		}
		return pool, nil
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
