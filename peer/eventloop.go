package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ciphernom/voirc/internal/desc"
	"github.com/ciphernom/voirc/internal/state"
	"github.com/ciphernom/voirc/internal/topology"
	"github.com/ciphernom/voirc/internal/voirccfg"
)

// maxReconnectDelay caps the exponential reconnect backoff (spec.md §4.9).
const maxReconnectDelay = 30 * time.Second

// reconnectNow is an internal event fired by a reconnect backoff timer; it
// never leaves this package.
type reconnectNow struct{ Nick string }

func (reconnectNow) isEvent() {}

// relayFrame is an internal event carrying one decoded audio frame
// received over the RLY fallback connection (spec.md §4.8).
type relayFrame struct {
	Nick string
	Data []byte
}

func (relayFrame) isEvent() {}

// signalingClosed fires when the signaling connection's read loop returns.
type signalingClosed struct{ Err error }

func (signalingClosed) isEvent() {}

// EventLoop is the single long-running task that fans in UI commands,
// media-session events, and signaling events, and drives reconnection
// (spec.md §4.9). Generalized from the teacher's client/app.go background
// goroutines (which emit to a Wails-bound GUI) to a headless Go channel
// fan-in, since no GUI front-end exists here.
type EventLoop struct {
	st     *state.State
	client *Client
	msm    *MSM
	cfg    voirccfg.Config
	desc   desc.Descriptor
	dataDir string

	events  chan Event
	audioIn chan AudioFrame

	currentChannel    string
	reconnectAttempts map[string]int

	relay *RelayClient

	shutdown chan struct{}
}

// NewEventLoop wires up an EventLoop over an already-handshaking client
// and a fresh MSM, both of which were constructed with events/audioIn as
// their outgoing channels.
func NewEventLoop(st *state.State, client *Client, msm *MSM, cfg voirccfg.Config, d desc.Descriptor, dataDir string, events chan Event, audioIn chan AudioFrame) *EventLoop {
	return &EventLoop{
		st:                st,
		client:            client,
		msm:               msm,
		cfg:               cfg,
		desc:              d,
		dataDir:           dataDir,
		events:            events,
		audioIn:           audioIn,
		reconnectAttempts: make(map[string]int),
		shutdown:          make(chan struct{}),
	}
}

// Run drives the ordered select until a Shutdown command is received or
// ctx is canceled (spec.md §4.9). UI commands and audio intake each keep
// their own channel, per spec.md §5's distinct treatment of the two; every
// other occurrence (signaling events, connection-failure, reconnect
// timers, file-receive) is unified onto one Go channel of the Event
// interface — the idiomatic-Go equivalent of spec.md's several
// conceptually-separate event channels, a tagged union rather than a
// reader-selects-N-channels fan-in.
func (el *EventLoop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-el.shutdown:
			return
		case cmd := <-el.st.CommandCh:
			if el.handleCommand(cmd) {
				return
			}
		case frame := <-el.audioIn:
			el.handleAudio(frame)
		case ev := <-el.events:
			el.handleEvent(ev)
		}
	}
}

func (el *EventLoop) handleCommand(cmd state.Command) (stop bool) {
	switch cmd.Kind {
	case state.CommandAnnounceRole:
		nick, _ := el.st.Self()
		el.st.SetSelf(nick, cmd.Role)
		el.client.AnnounceRole(cmd.Channel, cmd.Role)
	case state.CommandSendModAction:
		el.client.SendModAction(cmd.Channel, cmd.Action, cmd.Target)
	case state.CommandSendWebRtcSignal:
		el.client.SendWebRtcSignal(cmd.Target, cmd.Payload)
	case state.CommandSendMessage:
		if err := el.client.SendMessage(cmd.Channel, cmd.Text); err != nil {
			log.Printf("[eventloop] send message: %v", err)
		}
	case state.CommandSendPowSet:
		el.client.SendPowSet(cmd.Bits)
	case state.CommandJoinChannel:
		el.switchChannel(cmd.Channel)
	case state.CommandPartChannel:
		el.client.PartChannel(cmd.Channel)
	case state.CommandSendFile:
		el.sendFile(cmd.Target, cmd.Path)
	case state.CommandShutdown:
		el.msm.CloseAll()
		el.client.Close()
		if el.relay != nil {
			el.relay.Close()
		}
		return true
	}
	return false
}

func (el *EventLoop) sendFile(target, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[eventloop] read %s: %v", path, err)
		return
	}
	go func() {
		if err := el.msm.SendFile(target, filepath.Base(path), data); err != nil {
			log.Printf("[eventloop] send file to %s: %v", target, err)
		}
	}()
}

// switchChannel closes all media sessions, clears peer state, parts the
// old channel and joins the new one, re-announces role, and replays local
// chat history for the new channel (spec.md §4.9).
func (el *EventLoop) switchChannel(newChannel string) {
	el.msm.CloseAll()
	el.st.ClearPeers()
	el.reconnectAttempts = make(map[string]int)

	if el.currentChannel != "" {
		el.client.PartChannel(el.currentChannel)
	}
	el.client.JoinChannel(newChannel)
	el.currentChannel = newChannel

	nick, role := el.st.Self()
	el.client.AnnounceRole(newChannel, role)

	history, err := el.client.History(newChannel)
	if err != nil {
		log.Printf("[eventloop] load history for %s: %v", newChannel, err)
		return
	}
	for _, m := range history {
		log.Printf("[chat] %s %s: %s", newChannel, m.Author, m.Content)
	}
	_ = nick
}

func (el *EventLoop) handleAudio(frame AudioFrame) {
	el.st.MarkAudioObserved(frame.From, time.Now())

	_, selfRole := el.st.Self()
	peers := el.st.Peers()
	nicks := make([]string, 0, len(peers))
	for _, p := range peers {
		nicks = append(nicks, p.Nick)
	}
	targets := topology.ForwardTargets(selfRole, frame.From, nicks)
	if len(targets) > 0 {
		el.msm.ForwardAudio(frame.From, frame.Data, targets)
	}
}

func (el *EventLoop) handleEvent(ev Event) {
	switch e := ev.(type) {
	case UserJoined:
		el.handleUserJoined(e)
	case UserLeft:
		el.st.RemovePeer(e.Nick)
		el.msm.CloseSession(e.Nick)
		delete(el.reconnectAttempts, e.Nick)
	case WebRtcSignal:
		if err := el.msm.HandleSignal(e.From, e.Payload); err != nil {
			log.Printf("[eventloop] handle signal from %s: %v", e.From, err)
		}
	case ChatMessage:
		tag := ""
		if e.Suspicious {
			tag = " [?]"
		}
		log.Printf("[chat] %s %s: %s%s", e.Channel, e.From, e.Text, tag)
	case ModAction:
		log.Printf("[mod] %s: %s %s", e.From, e.Action, e.Target)
	case PowRequirementChanged:
		log.Printf("[pow] required difficulty now %d bits", e.Bits)
	case PowTooWeak:
		log.Printf("[pow] our HELLO was rejected: need >= %d bits", e.RequiredBits)
	case HelloFailed:
		log.Printf("[hello] rejected: %s", e.Reason)
	case HelloOK:
		log.Printf("[hello] accepted, pow_bits=%d", e.Bits)
	case NickInUse:
		log.Printf("[nick] in use")
	case MediaConnected:
		el.st.SetConnState(e.Nick, state.ConnConnected)
		el.reconnectAttempts[e.Nick] = 0
	case ConnFailed:
		el.st.SetConnState(e.Nick, state.ConnFailed)
		el.maybeFallbackToRelay()
	case Reconnect:
		el.scheduleReconnect(e.Nick)
	case ReceivedFile:
		el.saveReceivedFile(e)
	case reconnectNow:
		el.attemptReconnect(e.Nick)
	case relayFrame:
		el.st.SetConnState(e.Nick, state.ConnRelayed)
		el.st.MarkAudioObserved(e.Nick, time.Now())
	case signalingClosed:
		log.Printf("[eventloop] signaling connection closed: %v", e.Err)
	}
}

func (el *EventLoop) handleUserJoined(e UserJoined) {
	el.st.UpsertPeer(e.Nick, e.Role)
	el.st.SetConnState(e.Nick, state.ConnConnecting)

	selfNick, selfRole := el.st.Self()
	if !topology.ShouldConnectTo(selfRole, e.Role, el.st.AnySuperpeers()) {
		return
	}
	if topology.IsOfferer(selfNick, e.Nick) {
		if err := el.msm.CreateOffer(e.Nick); err != nil {
			log.Printf("[eventloop] create offer for %s: %v", e.Nick, err)
		}
	}
}

// reconnectDelay computes spec.md §4.9's exponential backoff:
// min(2^attempts, 30) seconds. A shift large enough to overflow into a
// negative or zero duration also clamps to the cap.
func reconnectDelay(attempts int) time.Duration {
	if attempts < 0 || attempts > 62 {
		return maxReconnectDelay
	}
	delay := time.Duration(1<<uint(attempts)) * time.Second
	if delay > maxReconnectDelay || delay <= 0 {
		return maxReconnectDelay
	}
	return delay
}

// scheduleReconnect applies spec.md §4.9's backoff and fires reconnectNow
// on its own timer goroutine, routed back through el.events so only the
// event loop goroutine ever touches MSM/STATE for this nick.
func (el *EventLoop) scheduleReconnect(nick string) {
	attempts := el.reconnectAttempts[nick]
	delay := reconnectDelay(attempts)
	el.reconnectAttempts[nick] = attempts + 1

	events := el.events
	time.AfterFunc(delay, func() {
		select {
		case events <- reconnectNow{Nick: nick}:
		default:
		}
	})
}

func (el *EventLoop) attemptReconnect(nick string) {
	selfNick, _ := el.st.Self()
	if !topology.IsOfferer(selfNick, nick) {
		return
	}
	el.msm.CloseSession(nick)
	if err := el.msm.CreateOffer(nick); err != nil {
		log.Printf("[eventloop] reconnect offer to %s: %v", nick, err)
	}
}

// maybeFallbackToRelay connects to the room's audio relay, if the
// descriptor advertises one, the first time any session fails (spec.md
// §4.8).
func (el *EventLoop) maybeFallbackToRelay() {
	if el.relay != nil || el.desc.RelayPort == nil {
		return
	}
	nick, _ := el.st.Self()
	addr := fmt.Sprintf("%s:%d", el.desc.Host, *el.desc.RelayPort)
	rc, err := DialRelay(addr, nick)
	if err != nil {
		log.Printf("[eventloop] relay fallback dial: %v", err)
		return
	}
	el.relay = rc
	events := el.events
	go func() {
		err := rc.ReadLoop(func(nick string, payload []byte) {
			select {
			case events <- relayFrame{Nick: nick, Data: payload}:
			default:
			}
		})
		log.Printf("[eventloop] relay connection closed: %v", err)
	}()
}

// SendAudio fans one locally-captured Opus frame out to every connected
// peer, via its media session if connected, or the relay fallback if the
// peer's state is ConnRelayed (spec.md §4.7, §4.8). The out-of-scope audio
// capture callback is the intended caller.
func (el *EventLoop) SendAudio(frame []byte) {
	for _, p := range el.st.Peers() {
		switch p.ConnState {
		case state.ConnConnected:
			if err := el.msm.SendAudio(p.Nick, frame); err != nil {
				log.Printf("[eventloop] send audio to %s: %v", p.Nick, err)
			}
		case state.ConnRelayed:
			if el.relay != nil {
				if err := el.relay.Send(frame); err != nil {
					log.Printf("[eventloop] relay send: %v", err)
				}
			}
		}
	}
}

func (el *EventLoop) saveReceivedFile(e ReceivedFile) {
	dir := filepath.Join(el.dataDir, "downloads")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.Printf("[eventloop] mkdir downloads: %v", err)
		return
	}
	path := filepath.Join(dir, filepath.Base(e.Name))
	if err := os.WriteFile(path, e.Data, 0o600); err != nil {
		log.Printf("[eventloop] save received file: %v", err)
		return
	}
	log.Printf("[eventloop] saved file from %s to %s", e.From, path)
}
