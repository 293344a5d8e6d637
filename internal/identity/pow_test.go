package identity

import "testing"

func TestMineRoundTrip(t *testing.T) {
	// Scenario 1 (spec.md §8): base "alice", D=8.
	pubkeyHex := "0000000000000000000000000000000000000000000000000000000000000001"
	got := Mine("alice", pubkeyHex, 8)
	if got.Attempts == 0 {
		t.Fatal("expected at least one attempt for D=8")
	}
	if !Verify(got.Nick, pubkeyHex, 8) {
		t.Fatalf("mined nick %q does not verify at D=8", got.Nick)
	}
}

func TestMineZeroDifficultyReturnsBaseUnmined(t *testing.T) {
	got := Mine("alice", "abcd", 0)
	if got.Nick != "alice" || got.Attempts != 0 {
		t.Fatalf("got %+v, want unmined base with zero attempts", got)
	}
	if !Verify("anything", "whatever", 0) {
		t.Fatal("D=0 must always verify")
	}
}

func TestCheckBitsRange(t *testing.T) {
	if err := CheckBits(0); err != nil {
		t.Fatalf("0 should be valid: %v", err)
	}
	if err := CheckBits(28); err != nil {
		t.Fatalf("28 should be valid: %v", err)
	}
	if err := CheckBits(29); err == nil {
		t.Fatal("29 should be invalid")
	}
	if err := CheckBits(-1); err == nil {
		t.Fatal("-1 should be invalid")
	}
}

func TestLeadingZeroBitsBoundary(t *testing.T) {
	h := [32]byte{}
	if leadingZeroBits(h) != 256 {
		t.Fatalf("all-zero hash should report 256 leading zero bits, got %d", leadingZeroBits(h))
	}
	h[0] = 0x80
	if leadingZeroBits(h) != 0 {
		t.Fatalf("top bit set should report 0 leading zero bits, got %d", leadingZeroBits(h))
	}
	h[0] = 0x01
	if leadingZeroBits(h) != 7 {
		t.Fatalf("0x01 first byte should report 7 leading zero bits, got %d", leadingZeroBits(h))
	}
}

func TestEstimateAttempts(t *testing.T) {
	if EstimateAttempts(0) != 0 {
		t.Fatal("0 bits should estimate 0 attempts")
	}
	if EstimateAttempts(8) != 256 {
		t.Fatalf("8 bits should estimate 256 attempts, got %d", EstimateAttempts(8))
	}
}
