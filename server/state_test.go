package main

import "testing"

func TestStageNickRejectsAlreadyBoundNick(t *testing.T) {
	s := NewServerState(0)
	s.Register("a1", nil)
	s.Register("a2", nil)

	if !s.StageNick("a1", "alice") {
		t.Fatal("first staging should succeed")
	}
	s.Authenticate("a1", "alice", "pubkeyA")

	if s.StageNick("a2", "alice") {
		t.Fatal("a second, unauthenticated client should not be able to stage a nick bound to someone else's pubkey")
	}

	if bound, ok := s.NickBoundPubkey("alice"); !ok || bound != "pubkeyA" {
		t.Fatalf("got %q, %v", bound, ok)
	}
}

func TestJoinPartMembership(t *testing.T) {
	s := NewServerState(0)
	s.Register("a1", nil)
	s.Register("a2", nil)
	s.StageNick("a1", "alice")
	s.StageNick("a2", "bob")

	others := s.Join("#general", "a1")
	if len(others) != 0 {
		t.Fatalf("expected no prior members, got %v", others)
	}
	others = s.Join("#general", "a2")
	if len(others) != 1 || others[0] != "a1" {
		t.Fatalf("expected [a1], got %v", others)
	}

	if !s.InChannel("#general", "a1") {
		t.Fatal("a1 should be a member")
	}
	remaining := s.Part("#general", "a1")
	if len(remaining) != 1 || remaining[0] != "a2" {
		t.Fatalf("expected [a2] remaining, got %v", remaining)
	}
}

func TestRemoveReturnsDedupedPeersAcrossChannels(t *testing.T) {
	s := NewServerState(0)
	s.Register("a1", nil)
	s.Register("a2", nil)
	s.StageNick("a1", "alice")
	s.StageNick("a2", "bob")
	s.Join("#general", "a1")
	s.Join("#general", "a2")
	s.Join("#random", "a1")
	s.Join("#random", "a2")

	peers, nick := s.Remove("a1")
	if nick != "alice" {
		t.Fatalf("got nick %q", nick)
	}
	if len(peers) != 1 || peers[0] != "a2" {
		t.Fatalf("expected a2 notified exactly once, got %v", peers)
	}
	if s.InChannel("#general", "a1") || s.InChannel("#random", "a1") {
		t.Fatal("a1 should have been removed from all channels")
	}
}

func TestRemoveClearsNickBindingOnlyForOwningPubkey(t *testing.T) {
	s := NewServerState(0)
	s.Register("a1", nil)
	s.StageNick("a1", "alice")
	s.Authenticate("a1", "alice", "pubkeyA")

	s.Remove("a1")
	if _, ok := s.NickBoundPubkey("alice"); ok {
		t.Fatal("expected nick binding to be cleared on disconnect")
	}
}

func TestCountFromHost(t *testing.T) {
	s := NewServerState(0)
	s.Register("1.2.3.4:1111", nil)
	s.Register("1.2.3.4:2222", nil)
	s.Register("5.6.7.8:1111", nil)

	if got := s.CountFromHost("1.2.3.4"); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
	if got := s.CountFromHost("5.6.7.8"); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestSetAndGetPowRequiredBits(t *testing.T) {
	s := NewServerState(4)
	if s.PowRequiredBits() != 4 {
		t.Fatalf("got %d, want 4", s.PowRequiredBits())
	}
	s.SetPowRequiredBits(10)
	if s.PowRequiredBits() != 10 {
		t.Fatalf("got %d, want 10", s.PowRequiredBits())
	}
}
