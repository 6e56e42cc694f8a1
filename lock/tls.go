package lock

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds client certificate paths for etcd.
type TLSConfig struct {
	// Enabled determines whether TLS is active
	Enabled bool `yaml:"enabled" json:"enabled"`

	// CertFile is the client certificate (PEM)
	CertFile string `yaml:"cert_file" json:"cert_file"`

	// KeyFile is the client private key (PEM)
	KeyFile string `yaml:"key_file" json:"key_file"`

	// CAFile verifies the server certificate (PEM)
	CAFile string `yaml:"ca_file" json:"ca_file"`
}

// ClientConfig loads the key pair and CA into a tls.Config. It returns nil
// when TLS is disabled.
func (c *TLSConfig) ClientConfig() (*tls.Config, error) {
	if c == nil || !c.Enabled {
		return nil, nil
	}
	switch {
	case c.CertFile == "":
		return nil, fmt.Errorf("TLS cert file is required when TLS is enabled")
	case c.KeyFile == "":
		return nil, fmt.Errorf("TLS key file is required when TLS is enabled")
	case c.CAFile == "":
		return nil, fmt.Errorf("TLS CA file is required when TLS is enabled")
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	caData, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
