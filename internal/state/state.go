// Package state holds the shared model the peer-side event loop writes and
// the out-of-scope UI front-end reads: peer records, channel membership,
// and the single command channel through which the UI pushes intent
// (spec.md §3, §4.9). Modeled on the teacher's server/room.go Room type:
// one RWMutex, narrow mutating methods, plain read accessors that return
// copies so callers never hold a reference into protected state.
package state

import (
	"sync"
	"time"

	"github.com/ciphernom/voirc/internal/topology"
)

// ConnState is the peer connection-state axis of spec.md §3.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnConnected
	ConnNatIssue
	ConnRelayed
	ConnFailed
)

// speakingWindow is how recently audio must have been observed from a peer
// for Speaking to report true (spec.md §3 invariant).
const speakingWindow = 400 * time.Millisecond

// PeerRecord is one remote participant as seen by this peer (spec.md §3).
type PeerRecord struct {
	Nick         string
	Role         topology.Role
	ConnState    ConnState
	Connected    bool
	ConnStarted  *time.Time
	lastAudio    time.Time // zero until audio has been observed
}

// Speaking reports whether audio has been observed from this peer within
// the last 400ms (spec.md §3 invariant), evaluated against now.
func (p PeerRecord) Speaking(now time.Time) bool {
	if p.lastAudio.IsZero() {
		return false
	}
	return now.Sub(p.lastAudio) <= speakingWindow
}

// ChannelState is a channel name and its member nicks (spec.md §3).
type ChannelState struct {
	Name    string
	Members map[string]struct{}
}

// State is the single shared, mutex-guarded model. The event loop is the
// sole writer; the UI front-end only reads via the accessor methods below
// (spec.md §3's ownership rule).
type State struct {
	mu       sync.RWMutex
	peers    map[string]*PeerRecord
	channels map[string]*ChannelState
	selfNick string
	selfRole topology.Role
	CommandCh chan Command
}

// New returns an empty State with a buffered command channel so the UI
// front-end never blocks pushing a command.
func New() *State {
	return &State{
		peers:     make(map[string]*PeerRecord),
		channels:  make(map[string]*ChannelState),
		CommandCh: make(chan Command, 64),
	}
}

// SetSelf records this peer's own nick and role, used by TOP decisions.
func (s *State) SetSelf(nick string, role topology.Role) {
	s.mu.Lock()
	s.selfNick = nick
	s.selfRole = role
	s.mu.Unlock()
}

// Self returns this peer's own nick and role.
func (s *State) Self() (nick string, role topology.Role) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfNick, s.selfRole
}

// AnySuperpeers reports whether any currently-known peer holds Host or Mod
// role, for TOP.ShouldConnectTo's anySuperpeersInRoom argument.
func (s *State) AnySuperpeers() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.peers {
		if p.Role == topology.RoleHost || p.Role == topology.RoleMod {
			return true
		}
	}
	return false
}

// UpsertPeer creates or updates a peer record's nick/role on presence-join
// (spec.md §3 lifecycle).
func (s *State) UpsertPeer(nick string, role topology.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[nick]
	if !ok {
		p = &PeerRecord{Nick: nick}
		s.peers[nick] = p
	}
	p.Role = role
}

// RemovePeer destroys a peer record on presence-leave (spec.md §3 lifecycle).
func (s *State) RemovePeer(nick string) {
	s.mu.Lock()
	delete(s.peers, nick)
	s.mu.Unlock()
}

// Peer returns a copy of nick's peer record, if known.
func (s *State) Peer(nick string) (PeerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[nick]
	if !ok {
		return PeerRecord{}, false
	}
	return *p, true
}

// Peers returns a copy of every known peer record (read-only UI accessor).
func (s *State) Peers() []PeerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PeerRecord, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, *p)
	}
	return out
}

// SetConnState transitions nick's connection state. Setting ConnConnected
// also sets Connected=true and stamps ConnStarted if not already set
// (spec.md §3 invariant: connected==true implies conn_state==Connected).
// Any other state clears Connected.
func (s *State) SetConnState(nick string, cs ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[nick]
	if !ok {
		return
	}
	p.ConnState = cs
	if cs == ConnConnected {
		p.Connected = true
		if p.ConnStarted == nil {
			now := time.Now()
			p.ConnStarted = &now
		}
	} else {
		p.Connected = false
	}
}

// MarkAudioObserved records that a frame from nick was just received, for
// the Speaking invariant window.
func (s *State) MarkAudioObserved(nick string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[nick]; ok {
		p.lastAudio = at
	}
}

// JoinChannel adds nick to channel's member set, creating the channel
// record if needed.
func (s *State) JoinChannel(channel, nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[channel]
	if !ok {
		c = &ChannelState{Name: channel, Members: make(map[string]struct{})}
		s.channels[channel] = c
	}
	c.Members[nick] = struct{}{}
}

// PartChannel removes nick from channel's member set.
func (s *State) PartChannel(channel, nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[channel]; ok {
		delete(c.Members, nick)
	}
}

// Channel returns a snapshot of channel's membership, if known.
func (s *State) Channel(channel string) (ChannelState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[channel]
	if !ok {
		return ChannelState{}, false
	}
	members := make(map[string]struct{}, len(c.Members))
	for k := range c.Members {
		members[k] = struct{}{}
	}
	return ChannelState{Name: c.Name, Members: members}, true
}

// ClearPeers removes every known peer record, used on a channel switch
// before the new channel's presence events repopulate it (spec.md §4.9).
func (s *State) ClearPeers() {
	s.mu.Lock()
	s.peers = make(map[string]*PeerRecord)
	s.mu.Unlock()
}
