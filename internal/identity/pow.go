package identity

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// MaxDifficultyBits is the maximum pow_required_bits the server will
// accept (spec.md §4.2, §4.5).
const MaxDifficultyBits = 28

// ErrInvalidBits is returned when a requested difficulty is out of the
// server's accepted [0, MaxDifficultyBits] range.
var ErrInvalidBits = errors.New("identity: invalid difficulty bits")

// MinedNick is the result of a successful nick-mining run.
type MinedNick struct {
	Nick     string
	Nonce    uint64
	Bits     int // actual leading-zero-bit count achieved
	Attempts uint64
}

// CheckBits validates a requested difficulty is within the server's
// accepted range.
func CheckBits(bits int) error {
	if bits < 0 || bits > MaxDifficultyBits {
		return fmt.Errorf("%w: %d", ErrInvalidBits, bits)
	}
	return nil
}

// candidateHash computes SHA256(candidate || pubkeyHex), spec.md §4.5's PoW
// hash input.
func candidateHash(candidate, pubkeyHex string) [32]byte {
	h := sha256.New()
	h.Write([]byte(candidate))
	h.Write([]byte(pubkeyHex))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// leadingZeroBits counts the number of leading zero bits in h.
func leadingZeroBits(h [32]byte) int {
	count := 0
	for _, b := range h {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// Verify reports whether nick's PoW hash over pubkeyHex meets the required
// difficulty. bits == 0 always verifies.
func Verify(nick, pubkeyHex string, bits int) bool {
	if bits <= 0 {
		return true
	}
	return leadingZeroBits(candidateHash(nick, pubkeyHex)) >= bits
}

// ActualBits returns the leading-zero-bit count of nick's PoW hash over
// pubkeyHex, regardless of any target difficulty.
func ActualBits(nick, pubkeyHex string) int {
	return leadingZeroBits(candidateHash(nick, pubkeyHex))
}

// Mine iterates nonces 0, 1, 2, … appending "#<4+ hex digit nonce>" to base
// until SHA256(candidate || pubkeyHex) has at least bits leading zero bits.
// bits == 0 returns the base name unmined, with zero attempts.
func Mine(base, pubkeyHex string, bits int) MinedNick {
	if bits <= 0 {
		return MinedNick{Nick: base, Nonce: 0, Bits: ActualBits(base, pubkeyHex), Attempts: 0}
	}
	for nonce := uint64(0); ; nonce++ {
		candidate := fmt.Sprintf("%s#%04x", base, nonce)
		h := candidateHash(candidate, pubkeyHex)
		actual := leadingZeroBits(h)
		if actual >= bits {
			return MinedNick{Nick: candidate, Nonce: nonce, Bits: actual, Attempts: nonce + 1}
		}
	}
}

// EstimateAttempts returns the expected number of mining attempts to reach
// bits leading zero bits (2^bits), a pure helper the out-of-scope UI can
// poll to render mining progress (original_source/src/pow.rs exposes the
// same estimate).
func EstimateAttempts(bits int) uint64 {
	if bits <= 0 {
		return 0
	}
	if bits >= 64 {
		bits = 63
	}
	return uint64(1) << uint(bits)
}
