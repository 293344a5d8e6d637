// Package identity implements the long-lived Ed25519 keypair every voirc
// peer binds its nick to, nick-mining proof-of-work, and the signed,
// hash-chained chat log (spec.md §4.5).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidPubkey is returned when a hex-encoded public key cannot be
// decoded into a valid Ed25519 verifying key.
var ErrInvalidPubkey = errors.New("identity: invalid pubkey")

// ErrInvalidSignature is returned when a hex-encoded signature cannot be
// decoded, or does not verify against the given message.
var ErrInvalidSignature = errors.New("identity: invalid signature")

// keyFileMode restricts the private scalar to the owning user.
const keyFileMode = 0o600

// Identity holds a peer's signing keypair.
type Identity struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// PubkeyHex returns the lowercase-hex encoding of the 32-byte verifying key.
func (id Identity) PubkeyHex() string {
	return hex.EncodeToString(id.Public)
}

// Sign returns an Ed25519 signature over msg.
func (id Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.Private, msg)
}

// Generate creates a fresh keypair using crypto/rand.
func Generate() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("[identity] generate: %w", err)
	}
	return Identity{Private: priv, Public: pub}, nil
}

// VerifyNickSignature reports whether sigHex is a valid Ed25519 signature
// by pubkeyHex over the ASCII bytes of nick (spec.md §4.2's VOIRC_HELLO
// check). Returns ErrInvalidPubkey or ErrInvalidSignature on failure so
// callers can distinguish the two HELLO_FAILED reasons.
func VerifyNickSignature(nick, pubkeyHex, sigHex string) error {
	pub, err := hex.DecodeString(pubkeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return ErrInvalidPubkey
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(nick), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// LoadOrCreate reads the 32-byte private scalar at path, deriving the public
// key from it. If the file does not exist, a new keypair is generated and
// persisted there. Matches the teacher's tls.go persist-once-reuse-after
// pattern, adapted from an ECDSA server cert to a standing Ed25519 identity.
func LoadOrCreate(path string) (Identity, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != ed25519.SeedSize {
			return Identity{}, fmt.Errorf("[identity] %s: want %d bytes, got %d", path, ed25519.SeedSize, len(raw))
		}
		priv := ed25519.NewKeyFromSeed(raw)
		return Identity{Private: priv, Public: priv.Public().(ed25519.PublicKey)}, nil
	}
	if !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("[identity] read %s: %w", path, err)
	}

	id, err := Generate()
	if err != nil {
		return Identity{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Identity{}, fmt.Errorf("[identity] mkdir: %w", err)
	}
	seed := id.Private.Seed()
	if err := os.WriteFile(path, seed, keyFileMode); err != nil {
		return Identity{}, fmt.Errorf("[identity] write %s: %w", path, err)
	}
	return id, nil
}
