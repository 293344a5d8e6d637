package main

import "github.com/ciphernom/voirc/internal/topology"

// Event is one signaling/media occurrence delivered to the event loop's
// signaling-event channel (spec.md §4.3, §4.9). Concrete types below are
// the only implementations.
type Event interface{ isEvent() }

// UserJoined fires when a channel member's presence (and role) is
// observed, either via JOIN or a NAMES reply on our own join.
type UserJoined struct {
	Nick string
	Role topology.Role
}

// UserLeft fires on PART or QUIT from a known peer.
type UserLeft struct {
	Nick string
}

// WebRtcSignal carries a fully reassembled out-of-band signaling payload
// from From (spec.md §4.4).
type WebRtcSignal struct {
	From    string
	Payload string
}

// ChatMessage is an accepted signed chat message (spec.md §3).
type ChatMessage struct {
	Channel string
	From    string
	Text    string
	// Suspicious is true when the message passed signature verification
	// but failed chain-hash or timestamp checks (spec.md §4.5's "[?]" tag).
	Suspicious bool
}

// ModAction is an incoming VOIRC_MOD prefix from an authenticated peer.
type ModAction struct {
	From   string
	Action string
	Target string
}

// PowRequirementChanged fires on a VOIRC_POW_REQUIRED broadcast.
type PowRequirementChanged struct {
	Bits int
}

// PowTooWeak fires when our own HELLO was rejected for insufficient PoW.
type PowTooWeak struct {
	RequiredBits int
}

// HelloFailed fires when our own HELLO was rejected for any other reason
// (invalid_signature, invalid_pubkey, nick_mismatch, banned).
type HelloFailed struct {
	Reason string
}

// HelloOK fires when our own HELLO is accepted.
type HelloOK struct {
	Bits int
}

// NickInUse fires on a 433 numeric reply to our own NICK.
type NickInUse struct{}

// ConnFailed fires when a media session's connection state goes Failed
// (spec.md §4.7).
type ConnFailed struct {
	Nick string
}

// Reconnect requests the event loop schedule a reconnect attempt for Nick
// (emitted after ConnFailed or Disconnected).
type Reconnect struct {
	Nick string
}

// ReceivedFile fires when a data-channel file transfer completes
// (spec.md §4.7).
type ReceivedFile struct {
	From string
	Name string
	Data []byte
}

// MediaConnected fires on a media session's connection-state callback
// reaching Connected (spec.md §4.7). Funneled through the event channel
// rather than touching STATE from the callback goroutine directly.
type MediaConnected struct {
	Nick string
}

func (UserJoined) isEvent()             {}
func (UserLeft) isEvent()               {}
func (WebRtcSignal) isEvent()           {}
func (ChatMessage) isEvent()            {}
func (ModAction) isEvent()              {}
func (PowRequirementChanged) isEvent()  {}
func (PowTooWeak) isEvent()             {}
func (HelloFailed) isEvent()            {}
func (HelloOK) isEvent()                {}
func (NickInUse) isEvent()              {}
func (ConnFailed) isEvent()             {}
func (Reconnect) isEvent()              {}
func (ReceivedFile) isEvent()           {}
func (MediaConnected) isEvent()         {}
