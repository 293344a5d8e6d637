package identity

import (
	"testing"
	"time"
)

func TestAuthorAndVerifyRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	m := Author(id, "alice", "#general", "hello", now, nil)

	status, err := VerifyMessage(m, now, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
}

func TestTamperedContentRejected(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	m := Author(id, "alice", "#general", "hello", now, nil)
	m.Content = "hellx" // flip a byte

	status, err := VerifyMessage(m, now, nil)
	if status != StatusRejected || err == nil {
		t.Fatalf("expected rejection of tampered message, got status=%v err=%v", status, err)
	}
}

func TestChainHashMismatchIsSuspiciousNotRejected(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	m := Author(id, "alice", "#general", "hi", now, []int64{1, 2, 3})

	status, err := VerifyMessage(m, now, []int64{9, 9, 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusSuspicious {
		t.Fatalf("expected StatusSuspicious, got %v", status)
	}
}

func TestFutureTimestampIsSuspicious(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	future := now.Add(500 * time.Second)
	m := Author(id, "alice", "#general", "hi", future, nil)

	status, err := VerifyMessage(m, now, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusSuspicious {
		t.Fatalf("expected StatusSuspicious for far-future timestamp, got %v", status)
	}
}

func TestChainHashComputation(t *testing.T) {
	a := ChainHash([]int64{1, 2, 3, 4, 5})
	b := ChainHash([]int64{0, 1, 2, 3, 4, 5}) // only last 5 matter
	if a != b {
		t.Fatalf("chain hash should only consider the last %d timestamps", chainWindow)
	}
}
