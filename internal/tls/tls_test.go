package tls

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevCertGenerator_GenerateCert(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)

	cert, err := gen.GenerateCert([]string{"zksteam.local", "127.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.NoError(t, leaf.VerifyHostname("zksteam.local"))
	assert.NoError(t, leaf.VerifyHostname("127.0.0.1"))
	assert.FileExists(t, filepath.Join(dir, devCertFile))
	assert.FileExists(t, filepath.Join(dir, devKeyFile))

	t.Run("reuses_valid_certificate", func(t *testing.T) {
		again, err := gen.GenerateCert([]string{"zksteam.local"})
		require.NoError(t, err)
		assert.Equal(t, cert.Certificate[0], again.Certificate[0])
	})

	t.Run("regenerates_for_new_host", func(t *testing.T) {
		again, err := gen.GenerateCert([]string{"other.local"})
		require.NoError(t, err)
		assert.NotEqual(t, cert.Certificate[0], again.Certificate[0])
	})

	t.Run("regenerates_near_expiry", func(t *testing.T) {
		first, err := gen.GenerateCert([]string{"localhost"})
		require.NoError(t, err)

		later := NewDevCertGenerator(dir)
		later.now = func() time.Time { return time.Now().Add(devCertValid) }
		second, err := later.GenerateCert([]string{"localhost"})
		require.NoError(t, err)
		assert.NotEqual(t, first.Certificate[0], second.Certificate[0])
	})
}

func TestTLSManager_GetCertificate(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantErr     error
	}{
		{name: "development_self_signs", environment: "development"},
		{name: "production_refuses_self_signed", environment: "production", wantErr: ErrNoCertificate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTLSManager(&TLSConfig{
				EnableTLS:   true,
				Domain:      "localhost",
				AutoCertDir: t.TempDir(),
				Environment: tt.environment,
			})
			assert.Nil(t, m.GetAutocertManager())

			cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			again, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
			require.NoError(t, err)
			assert.Same(t, cert, again)
		})
	}
}

func TestTLSManager_GetTLSConfig(t *testing.T) {
	cfg := NewTLSManager(&TLSConfig{AutoCertDir: t.TempDir()}).GetTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Contains(t, cfg.NextProtos, "h2")
	assert.NotNil(t, cfg.GetCertificate)
}
