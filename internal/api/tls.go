package api

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"

	"resumereview/internal/config"
)

// ClientCertificates serves the mutual TLS client certificate and lets it
// be replaced without rebuilding the transport
type ClientCertificates struct {
	current atomic.Pointer[tls.Certificate]
}

// GetClientCertificate implements tls.Config.GetClientCertificate
func (cc *ClientCertificates) GetClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	cert := cc.current.Load()
	if cert == nil {
		return nil, fmt.Errorf("no client certificate loaded")
	}
	return cert, nil
}

// Reload parses PEM content and swaps it in for new handshakes
func (cc *ClientCertificates) Reload(certPEM, keyPEM string) error {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return fmt.Errorf("failed to load client cert/key from content: %w", err)
	}
	cc.current.Store(&cert)
	return nil
}

func (cc *ClientCertificates) set(cert tls.Certificate) {
	cc.current.Store(&cert)
}

// BuildTLSConfig creates the client TLS configuration for the service
func BuildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tlsConfig, _, err := buildTLS(cfg)
	return tlsConfig, err
}

// buildTLS also returns the certificate source in mutual mode
func buildTLS(cfg config.TLSConfig) (*tls.Config, *ClientCertificates, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402 -- opt-in for local development
	}

	if cfg.MinVersion == "1.3" {
		tlsConfig.MinVersion = tls.VersionTLS13
	}

	pool, err := loadCACertPool(cfg)
	if err != nil {
		return nil, nil, err
	}
	tlsConfig.RootCAs = pool

	if cfg.Mode != "mutual" {
		return tlsConfig, nil, nil
	}

	cert, err := loadClientCertificate(cfg)
	if err != nil {
		return nil, nil, err
	}
	certs := &ClientCertificates{}
	certs.set(cert)
	tlsConfig.GetClientCertificate = certs.GetClientCertificate
	return tlsConfig, certs, nil
}

// loadCACertPool returns nil (system roots) unless an extra CA is configured
func loadCACertPool(cfg config.TLSConfig) (*x509.CertPool, error) {
	var pem []byte
	switch {
	case cfg.CAContent != "":
		pem = []byte(cfg.CAContent)
	case cfg.CAFile != "":
		data, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", cfg.CAFile, err)
		}
		pem = data
	default:
		return nil, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no valid CA certificates found")
	}
	return pool, nil
}

// loadClientCertificate loads the client certificate from content or files
func loadClientCertificate(cfg config.TLSConfig) (tls.Certificate, error) {
	if cfg.CertContent != "" && cfg.KeyContent != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.CertContent), []byte(cfg.KeyContent))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load client cert/key from content: %w", err)
		}
		return cert, nil
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load client cert/key from files: %w", err)
		}
		return cert, nil
	}

	return tls.Certificate{}, fmt.Errorf("client certificate and key are required for mutual TLS")
}
