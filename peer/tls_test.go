package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"testing"
	"time"
)

func selfSignedDER(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "voirc"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

func TestPinnedTLSConfigAcceptsMatchingFingerprint(t *testing.T) {
	der := selfSignedDER(t)
	sum := sha256.Sum256(der)
	want := hex.EncodeToString(sum[:])

	cfg := pinnedTLSConfig(want)
	if err := cfg.VerifyPeerCertificate([][]byte{der}, nil); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestPinnedTLSConfigRejectsMismatchedFingerprint(t *testing.T) {
	der := selfSignedDER(t)
	cfg := pinnedTLSConfig("0000000000000000000000000000000000000000000000000000000000000000")
	if err := cfg.VerifyPeerCertificate([][]byte{der}, nil); err == nil {
		t.Fatal("expected mismatch error, got nil")
	}
}

func TestPinnedTLSConfigRejectsNoCertificate(t *testing.T) {
	cfg := pinnedTLSConfig("anything")
	if err := cfg.VerifyPeerCertificate(nil, nil); err == nil {
		t.Fatal("expected error for no presented certificate")
	}
}

func TestPinnedTLSConfigSkipsOrdinaryValidation(t *testing.T) {
	cfg := pinnedTLSConfig("x")
	if !cfg.InsecureSkipVerify {
		t.Fatal("expected InsecureSkipVerify, pinning replaces chain validation")
	}
}
