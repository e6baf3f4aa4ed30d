package webserver

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// manualTLS loads an operator-provided certificate pair.
func manualTLS(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("webserver: manual tls requires certFile and keyFile")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// autocertTLS obtains certificates for domain from Let's Encrypt via the
// TLS-ALPN-01 challenge, caching them in cacheDir.
func autocertTLS(domain, cacheDir string) (*tls.Config, error) {
	if domain == "" {
		return nil, errors.New("webserver: autocert tls requires a domain")
	}
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return nil, err
	}
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
		Cache:      autocert.DirCache(cacheDir),
	}
	return m.TLSConfig(), nil
}

// selfSignedTLS loads the cached self-signed pair in cacheDir, generating a
// new one when it is missing, unreadable, expired or does not cover host.
func selfSignedTLS(cacheDir, host string) (*tls.Config, error) {
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return nil, err
	}
	certFile := filepath.Join(cacheDir, "quota-tray.crt")
	keyFile := filepath.Join(cacheDir, "quota-tray.key")

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err == nil && certUsable(cert, host, time.Now()) {
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}
	if err := generateSelfSigned(certFile, keyFile, host); err != nil {
		return nil, fmt.Errorf("webserver: generate self-signed cert: %w", err)
	}
	cert, err = tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func certUsable(cert tls.Certificate, host string, now time.Time) bool {
	if len(cert.Certificate) == 0 {
		return false
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil || now.After(leaf.NotAfter) {
		return false
	}
	return host == "" || leaf.VerifyHostname(host) == nil
}

// certNames returns the SANs for a cert valid on loopback and on host.
func certNames(host string) ([]net.IP, []string) {
	ips := []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}
	dns := []string{"localhost"}
	switch ip := net.ParseIP(host); {
	case host == "" || host == "localhost":
	case ip == nil:
		dns = append(dns, host)
	case !ip.IsLoopback() && !ip.IsUnspecified():
		ips = append(ips, ip)
	}
	return ips, dns
}

func generateSelfSigned(certFile, keyFile, host string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return err
	}
	ips, dns := certNames(host)
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"quota-tray"}, CommonName: "quota-tray dashboard"},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.AddDate(2, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  ips,
		DNSNames:     dns,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}

	if err := writePEM(keyFile, 0600, "EC PRIVATE KEY", keyDER); err != nil {
		return err
	}
	return writePEM(certFile, 0644, "CERTIFICATE", der)
}

func writePEM(path string, perm os.FileMode, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
