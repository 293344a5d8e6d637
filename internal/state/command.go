package state

import "github.com/ciphernom/voirc/internal/topology"

// CommandKind enumerates the intents the out-of-scope UI front-end can push
// through State.CommandCh (spec.md §4.3's "commands accepted" plus the
// event loop's own Shutdown, spec.md §4.9).
type CommandKind int

const (
	CommandAnnounceRole CommandKind = iota
	CommandSendModAction
	CommandSendWebRtcSignal
	CommandSendMessage
	CommandSendPowSet
	CommandJoinChannel
	CommandPartChannel
	CommandSendFile
	CommandShutdown
)

// Command is a single UI-originated instruction. Only the fields relevant
// to Kind are populated; the rest are zero.
type Command struct {
	Kind    CommandKind
	Channel string
	Role    topology.Role
	Action  string
	Target  string
	Text    string
	Bits    int
	Payload string // CommandSendWebRtcSignal: reassembled signal payload
	Path    string // CommandSendFile: local file path to transfer
}
