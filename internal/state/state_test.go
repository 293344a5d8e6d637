package state

import (
	"testing"
	"time"

	"github.com/ciphernom/voirc/internal/topology"
)

func TestUpsertAndRemovePeerLifecycle(t *testing.T) {
	s := New()
	s.UpsertPeer("alice", topology.RolePeer)
	if _, ok := s.Peer("alice"); !ok {
		t.Fatal("expected alice to be present after upsert")
	}
	s.RemovePeer("alice")
	if _, ok := s.Peer("alice"); ok {
		t.Fatal("expected alice to be gone after remove")
	}
}

func TestConnectedImpliesConnStateConnected(t *testing.T) {
	s := New()
	s.UpsertPeer("alice", topology.RolePeer)
	s.SetConnState("alice", ConnConnected)
	p, _ := s.Peer("alice")
	if !p.Connected || p.ConnState != ConnConnected {
		t.Fatalf("got %+v", p)
	}
	s.SetConnState("alice", ConnFailed)
	p, _ = s.Peer("alice")
	if p.Connected {
		t.Fatal("Connected must be false once state leaves Connected")
	}
}

func TestSpeakingRequiresRecentAudio(t *testing.T) {
	s := New()
	s.UpsertPeer("alice", topology.RolePeer)
	now := time.Unix(1000, 0)
	s.MarkAudioObserved("alice", now)

	p, _ := s.Peer("alice")
	if !p.Speaking(now.Add(100 * time.Millisecond)) {
		t.Fatal("should be speaking 100ms after audio observed")
	}
	if p.Speaking(now.Add(500 * time.Millisecond)) {
		t.Fatal("should not be speaking 500ms after audio observed")
	}
}

func TestAnySuperpeers(t *testing.T) {
	s := New()
	s.UpsertPeer("alice", topology.RolePeer)
	if s.AnySuperpeers() {
		t.Fatal("no superpeers expected yet")
	}
	s.UpsertPeer("bob", topology.RoleHost)
	if !s.AnySuperpeers() {
		t.Fatal("expected a superpeer after adding a host")
	}
}

func TestChannelMembership(t *testing.T) {
	s := New()
	s.JoinChannel("#general", "alice")
	s.JoinChannel("#general", "bob")
	ch, ok := s.Channel("#general")
	if !ok || len(ch.Members) != 2 {
		t.Fatalf("got %+v ok=%v", ch, ok)
	}
	s.PartChannel("#general", "bob")
	ch, _ = s.Channel("#general")
	if len(ch.Members) != 1 {
		t.Fatalf("expected 1 member after part, got %d", len(ch.Members))
	}
}

func TestClearPeers(t *testing.T) {
	s := New()
	s.UpsertPeer("alice", topology.RolePeer)
	s.UpsertPeer("bob", topology.RolePeer)
	s.ClearPeers()
	if len(s.Peers()) != 0 {
		t.Fatal("expected no peers after ClearPeers")
	}
}
