package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/acme/autocert"

	"zksteam-api/internal/util"
)

var ErrNoCertificate = errors.New("no TLS certificate available")

type TLSManager struct {
	config   *TLSConfig
	autoCert *autocert.Manager

	// file or generated fallback, loaded once
	fallbackOnce sync.Once
	fallback     *tls.Certificate
	fallbackErr  error
}

type TLSConfig struct {
	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
	Environment string
}

func NewTLSManager(config *TLSConfig) *TLSManager {
	manager := &TLSManager{
		config: config,
	}

	if config.AutoCert && config.EnableTLS {
		manager.setupAutoCert()
	}

	return manager
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.config.AutoCertDir, 0o700); err != nil {
		util.Warn("Could not create autocert directory", util.ErrorField(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.config.Domain),
		Cache:      autocert.DirCache(m.config.AutoCertDir),
		Email:      m.config.Email,
	}

	util.Info("AutoCert configured",
		util.String("domain", m.config.Domain),
		util.String("cache_dir", m.config.AutoCertDir))
}

// GetCertificate prefers ACME, then the configured key pair, then a
// self-signed development certificate. Production never self-signs.
func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		util.Warn("AutoCert certificate unavailable", util.ErrorField(err))
	}

	m.fallbackOnce.Do(func() {
		m.fallback, m.fallbackErr = m.loadFallback()
	})
	return m.fallback, m.fallbackErr
}

func (m *TLSManager) loadFallback() (*tls.Certificate, error) {
	if m.config.CertFile != "" && m.config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
		if err == nil {
			return &cert, nil
		}
		util.Warn("Could not load TLS key pair",
			util.String("cert_file", m.config.CertFile),
			util.ErrorField(err))
	}

	if m.config.Environment == "production" {
		return nil, ErrNoCertificate
	}
	return m.generateSelfSignedCert()
}

func (m *TLSManager) generateSelfSignedCert() (*tls.Certificate, error) {
	if err := os.MkdirAll(m.config.AutoCertDir, 0o700); err != nil {
		return nil, fmt.Errorf("create cert dir: %w", err)
	}

	hosts := []string{m.config.Domain, "localhost", "127.0.0.1", "::1"}
	cert, err := NewDevCertGenerator(m.config.AutoCertDir).GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	return &cert, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
