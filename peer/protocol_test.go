package main

import "testing"

func TestParseServerLineSimple(t *testing.T) {
	l := parseServerLine(":alice!voirc@host JOIN #general")
	if l.Verb != "JOIN" || l.Prefix != "alice!voirc@host" || l.Arg(0) != "#general" {
		t.Fatalf("got %+v", l)
	}
	if l.prefixNick() != "alice" {
		t.Fatalf("got prefix nick %q", l.prefixNick())
	}
}

func TestParseServerLineTrailingParam(t *testing.T) {
	l := parseServerLine(":bob!voirc@host PRIVMSG voirc :VOIRC_HELLO:bob:deadbeef:cafef00d")
	if l.Verb != "PRIVMSG" || l.Arg(0) != "voirc" {
		t.Fatalf("got %+v", l)
	}
	if l.Arg(1) != "VOIRC_HELLO:bob:deadbeef:cafef00d" {
		t.Fatalf("got trailing %q", l.Arg(1))
	}
}

func TestParseServerLineNoPrefix(t *testing.T) {
	l := parseServerLine("PING :voirc")
	if l.Prefix != "" || l.Verb != "PING" || l.Arg(0) != "voirc" {
		t.Fatalf("got %+v", l)
	}
}

func TestParseServerLineBareOriginPrefix(t *testing.T) {
	l := parseServerLine(":voirc 433 * alice :nickname in use")
	if l.prefixNick() != "voirc" {
		t.Fatalf("got prefix nick %q", l.prefixNick())
	}
	if l.Verb != "433" || l.Arg(0) != "*" || l.Arg(1) != "alice" {
		t.Fatalf("got %+v", l)
	}
}

func TestParseServerLineBlank(t *testing.T) {
	l := parseServerLine("   ")
	if l.Verb != "" {
		t.Fatalf("expected empty verb, got %q", l.Verb)
	}
}

func TestParseServerLineMalformedPrefixOnly(t *testing.T) {
	l := parseServerLine(":justaprefix")
	if l.Verb != "" {
		t.Fatalf("expected empty verb for prefix with no verb, got %q", l.Verb)
	}
}
