package identity

import (
	"testing"
	"time"
)

func TestAppendIdempotent(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenChannelLog(dir, "#general")
	if err != nil {
		t.Fatal(err)
	}
	id, _ := Generate()
	m := Author(id, "alice", "#general", "hi", time.Unix(1000, 0), nil)

	added1, err := log.Append(m)
	if err != nil || !added1 {
		t.Fatalf("first append: added=%v err=%v", added1, err)
	}
	added2, err := log.Append(m)
	if err != nil || added2 {
		t.Fatalf("second append should be a no-op: added=%v err=%v", added2, err)
	}
	if len(log.Messages()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(log.Messages()))
	}
}

func TestLogStaysSortedByTimestamp(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenChannelLog(dir, "#general")
	if err != nil {
		t.Fatal(err)
	}
	id, _ := Generate()
	for _, ts := range []int64{300, 100, 200} {
		m := Author(id, "alice", "#general", "hi", time.Unix(ts, 0), nil)
		if _, err := log.Append(m); err != nil {
			t.Fatal(err)
		}
	}
	msgs := log.Messages()
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].Timestamp > msgs[i].Timestamp {
			t.Fatalf("log not sorted: %+v", msgs)
		}
	}
}

func TestOpenChannelLogReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	id, _ := Generate()

	log1, err := OpenChannelLog(dir, "#general")
	if err != nil {
		t.Fatal(err)
	}
	m := Author(id, "alice", "#general", "hi", time.Unix(1000, 0), nil)
	if _, err := log1.Append(m); err != nil {
		t.Fatal(err)
	}

	log2, err := OpenChannelLog(dir, "#general")
	if err != nil {
		t.Fatal(err)
	}
	if len(log2.Messages()) != 1 {
		t.Fatalf("expected reloaded log to have 1 message, got %d", len(log2.Messages()))
	}
}

func TestApplySyncRejectsInvalidSignature(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenChannelLog(dir, "#general")
	if err != nil {
		t.Fatal(err)
	}
	id, _ := Generate()
	m := Author(id, "alice", "#general", "hi", time.Unix(1000, 0), nil)
	m.Content = "tampered"

	resp := SyncResponse{Channel: "#general", Messages: []Message{m}}
	appended, _ := ApplySync(log, resp, nil, time.Unix(2000, 0))
	if appended != 0 {
		t.Fatalf("expected 0 appended, got %d", appended)
	}
	if log.RejectedCount() != 1 {
		t.Fatalf("expected rejection counter to increment, got %d", log.RejectedCount())
	}
}

func TestApplySyncAppendsSuspiciousButNotRejected(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenChannelLog(dir, "#general")
	if err != nil {
		t.Fatal(err)
	}
	id, _ := Generate()
	future := time.Unix(1000, 0).Add(500 * time.Second)
	m := Author(id, "alice", "#general", "hi", future, nil)

	resp := SyncResponse{Channel: "#general", Messages: []Message{m}}
	appended, suspicious := ApplySync(log, resp, nil, time.Unix(1000, 0))
	if appended != 1 || suspicious != 1 {
		t.Fatalf("expected 1 appended+suspicious, got appended=%d suspicious=%d", appended, suspicious)
	}
}
