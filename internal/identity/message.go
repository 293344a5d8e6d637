package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// chainWindow is N in spec.md §3's chain_hash definition: the last N
// timestamps seen by the author.
const chainWindow = 5

// futureSkewTolerance is the window past "now" a timestamp may sit in
// before it is treated as suspicious (spec.md §4.5).
const futureSkewTolerance = 120 * time.Second

// Message is a signed chat message (spec.md §3).
type Message struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Pubkey    string `json:"pubkey"`
	Channel   string `json:"channel"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	ChainHash string `json:"chain_hash"`
	Signature string `json:"signature"` // hex-encoded Ed25519 signature
}

// canonicalBytes returns the exact byte sequence signed over: NUL-joined
// id, author, channel, content, timestamp, chain_hash (spec.md §3).
func canonicalBytes(m Message) []byte {
	fields := []string{
		m.ID, m.Author, m.Channel, m.Content,
		strconv.FormatInt(m.Timestamp, 10), m.ChainHash,
	}
	return []byte(strings.Join(fields, "\x00"))
}

// ChainHash computes SHA256(comma-joined last N timestamps), hex-encoded.
func ChainHash(recentTimestamps []int64) string {
	if len(recentTimestamps) > chainWindow {
		recentTimestamps = recentTimestamps[len(recentTimestamps)-chainWindow:]
	}
	parts := make([]string, len(recentTimestamps))
	for i, ts := range recentTimestamps {
		parts[i] = strconv.FormatInt(ts, 10)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

// Author creates and signs a new Message using id's keypair, given the
// author's own recent timestamp history (for the chain hash).
func Author(id Identity, nick, channel, content string, now time.Time, recentTimestamps []int64) Message {
	m := Message{
		ID:        uuid.NewString(),
		Author:    nick,
		Pubkey:    id.PubkeyHex(),
		Channel:   channel,
		Content:   content,
		Timestamp: now.Unix(),
		ChainHash: ChainHash(recentTimestamps),
	}
	sig := id.Sign(canonicalBytes(m))
	m.Signature = hex.EncodeToString(sig)
	return m
}

// VerifyStatus classifies the outcome of verifying a signed message.
type VerifyStatus int

const (
	StatusOK VerifyStatus = iota
	StatusSuspicious
	StatusRejected
)

// VerifyMessage checks m's Ed25519 signature and flags suspicious framing.
// knownTimestamps, when non-empty, is the verifier's own record of the
// author's recent timestamps; a chain_hash mismatch against it yields
// StatusSuspicious rather than StatusRejected (spec.md §4.5). A timestamp
// more than futureSkewTolerance ahead of now is likewise suspicious, not
// rejected. An invalid signature is always StatusRejected.
func VerifyMessage(m Message, now time.Time, knownTimestamps []int64) (VerifyStatus, error) {
	pubBytes, err := hex.DecodeString(m.Pubkey)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return StatusRejected, fmt.Errorf("%w: bad pubkey", ErrInvalidSignature)
	}
	sigBytes, err := hex.DecodeString(m.Signature)
	if err != nil {
		return StatusRejected, fmt.Errorf("%w: bad signature encoding", ErrInvalidSignature)
	}
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), canonicalBytes(m), sigBytes) {
		return StatusRejected, ErrInvalidSignature
	}

	suspicious := false
	if len(knownTimestamps) > 0 && m.ChainHash != ChainHash(knownTimestamps) {
		suspicious = true
	}
	if time.Unix(m.Timestamp, 0).After(now.Add(futureSkewTolerance)) {
		suspicious = true
	}
	if suspicious {
		return StatusSuspicious, nil
	}
	return StatusOK, nil
}
