package frag

import (
	"strings"
	"testing"
)

func TestSplitAndReassembleInOrder(t *testing.T) {
	payload := strings.Repeat("a", 1000)
	lines := Split(payload)
	if len(lines) != 3 { // 1000 / 400 = 2.5 -> 3 chunks
		t.Fatalf("expected 3 chunks, got %d", len(lines))
	}

	a := NewAssembler()
	var got string
	var ok bool
	for _, line := range lines {
		got, ok = a.Feed("alice", line)
	}
	if !ok {
		t.Fatal("expected completion on final chunk")
	}
	if got != payload {
		t.Fatalf("reassembled payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestReassemblyOutOfOrder(t *testing.T) {
	payload := strings.Repeat("b", 900)
	lines := Split(payload)
	a := NewAssembler()

	// Feed in reverse order.
	var got string
	var ok bool
	for i := len(lines) - 1; i >= 0; i-- {
		got, ok = a.Feed("bob", lines[i])
	}
	if !ok {
		t.Fatal("expected completion after all out-of-order chunks arrive")
	}
	if got != payload {
		t.Fatal("reassembly must concatenate in sequence order regardless of arrival order")
	}
}

func TestIdempotentRedelivery(t *testing.T) {
	payload := "short payload"
	lines := Split(payload)
	a := NewAssembler()
	for _, line := range lines {
		a.Feed("carol", line)
	}
	// Re-deliver the same complete message's lines; should have no effect.
	for _, line := range lines {
		if _, ok := a.Feed("carol", line); ok {
			t.Fatal("re-delivery of an already-complete message should not re-signal completion")
		}
	}
}

func TestMalformedFragmentsSilentlyDropped(t *testing.T) {
	a := NewAssembler()
	for _, bad := range []string{
		"WRTC:no brackets",
		"WRTC:[abc]chunk",
		"WRTC:[1/0|id]chunk",
		"WRTC:[0/1|id]chunk",
		"WRTC:[2/1|id]chunk",
		"not even a fragment",
	} {
		if _, ok := a.Feed("dave", bad); ok {
			t.Fatalf("expected malformed fragment %q to be dropped", bad)
		}
	}
}

func TestSingleChunkMessage(t *testing.T) {
	payload := "tiny"
	lines := Split(payload)
	if len(lines) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(lines))
	}
	a := NewAssembler()
	got, ok := a.Feed("erin", lines[0])
	if !ok || got != payload {
		t.Fatalf("got %q ok=%v, want %q", got, ok, payload)
	}
}
