package main

import (
	"sort"
	"sync"
)

// ClientRecord is everything the server tracks about one connected peer
// (spec.md §4.2's state map): optional nick, optional pubkey, authenticated
// flag, outbound send channel, source address. Mirrors the shape of teacher
// server/room.go's per-client bookkeeping, narrowed to the line-protocol
// fields this spec needs.
type ClientRecord struct {
	Addr          string
	Nick          string
	PubkeyHex     string
	Authenticated bool
	Send          chan<- string
}

// ServerState holds every connected client, channel membership, and the
// nick→pubkey binding table behind a single writer-preferring lock, the
// same shape as teacher server/room.go's Room. All mutation happens through
// narrow methods below; nothing outside this file touches the maps
// directly.
type ServerState struct {
	mu sync.RWMutex

	clients  map[string]*ClientRecord   // addr -> record
	channels map[string]map[string]bool // channel -> set of addrs
	nicks    map[string]string          // nick -> bound pubkey hex

	powRequiredBits int
}

// NewServerState returns an empty ServerState with powBits as the initial
// pow_required_bits.
func NewServerState(powBits int) *ServerState {
	return &ServerState{
		clients:         make(map[string]*ClientRecord),
		channels:        make(map[string]map[string]bool),
		nicks:           make(map[string]string),
		powRequiredBits: powBits,
	}
}

// Register adds a new, unregistered client record for addr.
func (s *ServerState) Register(addr string, send chan<- string) *ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &ClientRecord{Addr: addr, Send: send}
	s.clients[addr] = c
	return c
}

// Client returns the record for addr, if any.
func (s *ServerState) Client(addr string) (ClientRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[addr]
	if !ok {
		return ClientRecord{}, false
	}
	return *c, true
}

// ClientByNick returns the record bound to nick, if any connected client
// currently holds that nick.
func (s *ServerState) ClientByNick(nick string) (ClientRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.Nick == nick {
			return *c, true
		}
	}
	return ClientRecord{}, false
}

// NickBoundPubkey returns the pubkey hex bound to nick, if any.
func (s *ServerState) NickBoundPubkey(nick string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pk, ok := s.nicks[nick]
	return pk, ok
}

// StageNick sets addr's staged nick. Returns false (and leaves the record
// untouched) if nick is already bound to a different pubkey than any this
// client has authenticated with — spec.md's 433 rejection.
func (s *ServerState) StageNick(addr, nick string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[addr]
	if !ok {
		return false
	}
	if bound, exists := s.nicks[nick]; exists && c.PubkeyHex != "" && bound != c.PubkeyHex {
		return false
	}
	if bound, exists := s.nicks[nick]; exists && c.PubkeyHex == "" && bound != "" {
		return false
	}
	c.Nick = nick
	return true
}

// Authenticate binds nick to pubkeyHex for addr, marking the client
// authenticated. Called once VOIRC_HELLO verifies.
func (s *ServerState) Authenticate(addr, nick, pubkeyHex string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[addr]
	if !ok {
		return
	}
	c.Nick = nick
	c.PubkeyHex = pubkeyHex
	c.Authenticated = true
	s.nicks[nick] = pubkeyHex
}

// SetPowRequiredBits updates the server-wide PoW floor.
func (s *ServerState) SetPowRequiredBits(bits int) {
	s.mu.Lock()
	s.powRequiredBits = bits
	s.mu.Unlock()
}

// PowRequiredBits returns the current PoW floor.
func (s *ServerState) PowRequiredBits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.powRequiredBits
}

// Join adds addr to channel's member set and returns the other current
// members (for the 353/366 names reply and the join broadcast).
func (s *ServerState) Join(channel, addr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.channels[channel]
	if !ok {
		members = make(map[string]bool)
		s.channels[channel] = members
	}
	others := make([]string, 0, len(members))
	for a := range members {
		others = append(others, a)
	}
	members[addr] = true
	sort.Strings(others)
	return others
}

// Part removes addr from channel's member set and returns the remaining
// members.
func (s *ServerState) Part(channel, addr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.channels[channel]
	if !ok {
		return nil
	}
	delete(members, addr)
	if len(members) == 0 {
		delete(s.channels, channel)
	}
	remaining := make([]string, 0, len(members))
	for a := range members {
		remaining = append(remaining, a)
	}
	sort.Strings(remaining)
	return remaining
}

// ChannelMembers returns channel's current member addresses, the caller's
// own address included.
func (s *ServerState) ChannelMembers(channel string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.channels[channel]
	out := make([]string, 0, len(members))
	for a := range members {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// InChannel reports whether addr is a member of channel.
func (s *ServerState) InChannel(channel, addr string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[channel][addr]
}

// Remove deletes addr's client record and every channel membership it
// held, returning the set of peer addresses that shared at least one
// channel with it (deduplicated, for the one-quit-per-peer rule) along
// with the departed nick.
func (s *ServerState) Remove(addr string) (peers []string, nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[addr]
	if !ok {
		return nil, ""
	}
	nick = c.Nick
	if nick != "" {
		if bound, exists := s.nicks[nick]; exists && (c.PubkeyHex == "" || bound == c.PubkeyHex) {
			delete(s.nicks, nick)
		}
	}
	delete(s.clients, addr)

	seen := make(map[string]bool)
	for name, members := range s.channels {
		if !members[addr] {
			continue
		}
		delete(members, addr)
		if len(members) == 0 {
			delete(s.channels, name)
		}
		for peer := range members {
			seen[peer] = true
		}
	}
	peers = make([]string, 0, len(seen))
	for peer := range seen {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers, nick
}

// Channels returns the names of every channel addr currently belongs to.
func (s *ServerState) Channels(addr string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for name, members := range s.channels {
		if members[addr] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of connected clients.
func (s *ServerState) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// SendTo delivers line to addr's outbound channel, if addr is connected.
// Non-blocking: a client whose send buffer is full is skipped rather than
// stalling the caller.
func (s *ServerState) SendTo(addr, line string) {
	s.mu.RLock()
	c, ok := s.clients[addr]
	s.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.Send <- line:
	default:
	}
}

// BroadcastToAddrs delivers line to every address in addrs.
func (s *ServerState) BroadcastToAddrs(addrs []string, line string) {
	for _, a := range addrs {
		s.SendTo(a, line)
	}
}

// BroadcastAll delivers line to every connected client.
func (s *ServerState) BroadcastAll(line string) {
	s.mu.RLock()
	addrs := make([]string, 0, len(s.clients))
	for a := range s.clients {
		addrs = append(addrs, a)
	}
	s.mu.RUnlock()
	s.BroadcastToAddrs(addrs, line)
}

// CountFromHost returns how many currently-connected clients share host
// (the address with the port stripped), for the per-source-address cap.
func (s *ServerState) CountFromHost(host string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for a := range s.clients {
		if addrHost(a) == host {
			n++
		}
	}
	return n
}
