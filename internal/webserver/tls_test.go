package webserver

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafOf(t *testing.T, dir, host string) *x509.Certificate {
	t.Helper()
	cfg, err := selfSignedTLS(dir, host)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	return leaf
}

func TestSelfSignedReusesCachedCert(t *testing.T) {
	dir := t.TempDir()
	first := leafOf(t, dir, "127.0.0.1")
	second := leafOf(t, dir, "127.0.0.1")
	assert.Equal(t, first.SerialNumber, second.SerialNumber)
	assert.NoError(t, first.VerifyHostname("localhost"))
}

func TestSelfSignedRegeneratesForNewHost(t *testing.T) {
	dir := t.TempDir()
	first := leafOf(t, dir, "127.0.0.1")
	second := leafOf(t, dir, "quota.lan")
	assert.NotEqual(t, first.SerialNumber, second.SerialNumber)
	assert.NoError(t, second.VerifyHostname("quota.lan"))

	third := leafOf(t, dir, "192.168.1.20")
	assert.NoError(t, third.VerifyHostname("192.168.1.20"))
}

func TestCertUsableRejectsExpired(t *testing.T) {
	cfg, err := selfSignedTLS(t.TempDir(), "")
	require.NoError(t, err)
	cert := cfg.Certificates[0]
	assert.True(t, certUsable(cert, "", time.Now()))
	assert.False(t, certUsable(cert, "", time.Now().AddDate(3, 0, 0)))
}

func TestTLSModes(t *testing.T) {
	_, err := manualTLS("", "")
	assert.Error(t, err, "manual mode needs both files")

	_, err = autocertTLS("", t.TempDir())
	assert.Error(t, err, "autocert needs a domain")

	cfg, err := autocertTLS("quota.example.com", t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, cfg.GetCertificate)
}
