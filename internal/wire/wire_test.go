package wire

import (
	"strings"
	"testing"
)

func scanAll(t *testing.T, input string) []string {
	t.Helper()
	scanner := NewLineScanner(strings.NewReader(input))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	return lines
}

func TestLineScannerSplitsOnCRLF(t *testing.T) {
	lines := scanAll(t, "NICK alice\r\nUSER a 0 * :Alice\r\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
	if lines[0] != "NICK alice" || lines[1] != "USER a 0 * :Alice" {
		t.Fatalf("got %v", lines)
	}
}

func TestExactly512BytesAccepted(t *testing.T) {
	// 512 bytes total including the trailing CRLF.
	body := strings.Repeat("a", 510)
	line := body + CRLF
	if len(line) != 512 {
		t.Fatalf("test setup: line is %d bytes, want 512", len(line))
	}
	lines := scanAll(t, line+"NEXT\r\n")
	if len(lines) != 2 || lines[0] != body {
		t.Fatalf("512-byte line should be accepted, got %v", lines)
	}
}

func TestOver512BytesDiscardedWithoutDisconnecting(t *testing.T) {
	body := strings.Repeat("a", 511) // 513 bytes with CRLF
	line := body + CRLF
	if len(line) != 513 {
		t.Fatalf("test setup: line is %d bytes, want 513", len(line))
	}
	lines := scanAll(t, line+"NEXT\r\n")
	if len(lines) != 1 || lines[0] != "NEXT" {
		t.Fatalf("513-byte line should be discarded but connection should continue, got %v", lines)
	}
}

func TestUserPrefixFormat(t *testing.T) {
	got := UserPrefix("alice", "server.example")
	want := ":alice!voirc@server.example"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
