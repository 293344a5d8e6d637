package main

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/ciphernom/voirc/internal/desc"
	"github.com/ciphernom/voirc/internal/identity"
	"github.com/ciphernom/voirc/internal/state"
	"github.com/ciphernom/voirc/internal/voirccfg"
)

func TestReconnectDelayBacksOffExponentiallyAndCaps(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, maxReconnectDelay}, // 32s would exceed the 30s cap
		{10, maxReconnectDelay},
		{100, maxReconnectDelay},
	}
	for _, c := range cases {
		got := reconnectDelay(c.attempts)
		if got != c.want {
			t.Errorf("reconnectDelay(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

// newDiscardConn returns a net.Conn whose writes never block, so a Client
// under test can send protocol lines without a live peer on the other end.
func newDiscardConn() net.Conn {
	client, server := net.Pipe()
	go io.Copy(io.Discard, server)
	return client
}

func newTestEventLoop(t *testing.T) *EventLoop {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	events := make(chan Event, 16)
	audioIn := make(chan AudioFrame, 16)
	dataDir := t.TempDir()

	client := NewClient(newDiscardConn(), "alice", id, 0, dataDir, events)
	msm := NewMSM("alice", voirccfg.Default(), client.SendWebRtcSignal, events, audioIn)
	st := state.New()
	st.SetSelf("alice", 0)

	return NewEventLoop(st, client, msm, voirccfg.Default(), desc.Descriptor{}, dataDir, events, audioIn)
}

func TestSwitchChannelClearsPeersAndResetsBackoff(t *testing.T) {
	el := newTestEventLoop(t)
	el.st.UpsertPeer("bob", 0)
	el.reconnectAttempts["bob"] = 3
	el.currentChannel = "#old"

	el.switchChannel("#new")

	if el.currentChannel != "#new" {
		t.Fatalf("currentChannel = %q, want #new", el.currentChannel)
	}
	if len(el.st.Peers()) != 0 {
		t.Fatalf("expected peers cleared, got %v", el.st.Peers())
	}
	if len(el.reconnectAttempts) != 0 {
		t.Fatalf("expected reconnect attempts cleared, got %v", el.reconnectAttempts)
	}
}

func TestHandleEventMediaConnectedResetsBackoffAndSetsConnected(t *testing.T) {
	el := newTestEventLoop(t)
	el.st.UpsertPeer("bob", 0)
	el.reconnectAttempts["bob"] = 2

	el.handleEvent(MediaConnected{Nick: "bob"})

	p, ok := el.st.Peer("bob")
	if !ok || p.ConnState != state.ConnConnected || !p.Connected {
		t.Fatalf("got peer %+v, ok=%v", p, ok)
	}
	if el.reconnectAttempts["bob"] != 0 {
		t.Fatalf("expected reconnect attempts reset, got %d", el.reconnectAttempts["bob"])
	}
}

func TestHandleEventUserLeftForgetsReconnectAttempts(t *testing.T) {
	el := newTestEventLoop(t)
	el.st.UpsertPeer("bob", 0)
	el.reconnectAttempts["bob"] = 5

	el.handleEvent(UserLeft{Nick: "bob"})

	if _, ok := el.st.Peer("bob"); ok {
		t.Fatal("expected peer removed")
	}
	if _, ok := el.reconnectAttempts["bob"]; ok {
		t.Fatal("expected reconnect attempts entry removed")
	}
}
