// Package main implements the TCP audio relay (spec.md §4.8): a plain TCP
// fallback that forwards tagged frames between clients when a direct
// WebRTC media path can't be established. No persistence, no
// authentication beyond the handshake nick.
package main

import (
	"sync"
	"sync/atomic"
)

// relayClient is one connected relay client: its handshake nick and the
// outbound byte-frame channel its writer goroutine drains.
type relayClient struct {
	nick string
	send chan []byte
}

// RelayState holds every connected relay client behind a single lock,
// the same narrow-mutating-methods shape as the signaling server's
// ServerState.
type RelayState struct {
	mu      sync.RWMutex
	clients map[string]*relayClient // addr -> client

	totalFrames   atomic.Uint64
	totalBytes    atomic.Uint64
	droppedFrames atomic.Uint64
}

// NewRelayState returns an empty RelayState.
func NewRelayState() *RelayState {
	return &RelayState{clients: make(map[string]*relayClient)}
}

// Register adds addr with its handshake nick.
func (s *RelayState) Register(addr, nick string, send chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[addr] = &relayClient{nick: nick, send: send}
}

// Remove deletes addr's client record.
func (s *RelayState) Remove(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, addr)
}

// Count returns the number of connected relay clients.
func (s *RelayState) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// BroadcastExcept delivers frame to every client other than fromAddr,
// non-blocking: a client whose send buffer is full is skipped.
func (s *RelayState) BroadcastExcept(fromAddr string, frame []byte) (delivered int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for addr, c := range s.clients {
		if addr == fromAddr {
			continue
		}
		select {
		case c.send <- frame:
			delivered++
		default:
			s.droppedFrames.Add(1)
		}
	}
	s.totalFrames.Add(1)
	s.totalBytes.Add(uint64(len(frame)))
	return delivered
}

// Stats returns cumulative frame count, byte count, and dropped-for-
// backpressure frame count.
func (s *RelayState) Stats() (frames, bytes, dropped uint64) {
	return s.totalFrames.Load(), s.totalBytes.Load(), s.droppedFrames.Load()
}
