package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// generateTLSConfig creates a self-signed ECDSA TLS certificate. Returns
// the tls.Config, its SHA-256 DER fingerprint, and any error. validity
// controls how long the certificate is valid for. Clients never validate
// this against a CA chain — they pin the fingerprint instead (spec.md
// §4.3) — so the Common Name and the single "localhost" SAN are cosmetic.
// Grounded on teacher server/tls.go.
func generateTLSConfig(validity time.Duration) (*tls.Config, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("[tls] generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, "", fmt.Errorf("[tls] generate serial: %w", err)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "voirc"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, "", fmt.Errorf("[tls] create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, "", fmt.Errorf("[tls] parse certificate: %w", err)
	}

	fp := sha256.Sum256(certDER)
	fingerprint := hex.EncodeToString(fp[:])

	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}

	return &tls.Config{Certificates: []tls.Certificate{tlsCert}}, fingerprint, nil
}

// loadOrGenerateTLSConfig persists the server's certificate under
// dir/cert.der and dir/key.der (spec.md §6's `<config>/voirc/tls/` layout)
// and reuses it across restarts so a peer's pinned fingerprint keeps
// matching. A fresh cert/key pair is generated and saved whenever either
// file is missing, unreadable, or the cert has expired.
func loadOrGenerateTLSConfig(dir string, validity time.Duration) (*tls.Config, string, error) {
	certPath := filepath.Join(dir, "cert.der")
	keyPath := filepath.Join(dir, "key.der")

	if certDER, err := os.ReadFile(certPath); err == nil {
		if keyDER, err := os.ReadFile(keyPath); err == nil {
			if cfg, fp, err := loadTLSConfig(certDER, keyDER); err == nil {
				return cfg, fp, nil
			}
		}
	}

	cfg, fp, err := generateTLSConfig(validity)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", fmt.Errorf("[tls] mkdir: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(cfg.Certificates[0].PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		return nil, "", fmt.Errorf("[tls] marshal key: %w", err)
	}
	if err := os.WriteFile(certPath, cfg.Certificates[0].Certificate[0], 0o600); err != nil {
		return nil, "", fmt.Errorf("[tls] write cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyDER, 0o600); err != nil {
		return nil, "", fmt.Errorf("[tls] write key: %w", err)
	}
	return cfg, fp, nil
}

func loadTLSConfig(certDER, keyDER []byte) (*tls.Config, string, error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, "", fmt.Errorf("[tls] parse cert: %w", err)
	}
	if time.Now().After(cert.NotAfter) {
		return nil, "", fmt.Errorf("[tls] certificate expired")
	}
	key, err := x509.ParseECPrivateKey(keyDER)
	if err != nil {
		return nil, "", fmt.Errorf("[tls] parse key: %w", err)
	}

	fp := sha256.Sum256(certDER)
	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}
	return &tls.Config{Certificates: []tls.Certificate{tlsCert}}, hex.EncodeToString(fp[:]), nil
}
