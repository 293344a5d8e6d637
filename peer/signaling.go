// Package main implements the peer binary: the signaling client (CLI),
// media session manager (MSM), and the event loop that drives them
// (spec.md §4.3, §4.7, §4.9). Grounded on the teacher's client/transport.go
// shape — a connection type with callback-style event delivery and a
// background read loop — generalized from WebTransport+JSON control
// messages to the line-oriented signaling protocol, and from callback
// setters to a single outgoing event channel since there is no GUI layer
// registering handlers here.
package main

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ciphernom/voirc/internal/frag"
	"github.com/ciphernom/voirc/internal/identity"
	"github.com/ciphernom/voirc/internal/topology"
	"github.com/ciphernom/voirc/internal/wire"
)

// helloDelay and joinDelay are spec.md §4.3's literal handshake timings.
const (
	helloDelay = 200 * time.Millisecond
	joinDelay  = 500 * time.Millisecond
)

// pseudoTarget is the server's pseudo-client nick used for identity
// handshake and difficulty changes (spec.md §4.2).
const pseudoTarget = "voirc"

// connectTimeout bounds the initial TCP/TLS dial (spec.md §5).
const connectTimeout = 10 * time.Second

// Dial opens a TCP connection to hostport, upgrading to pinned TLS when
// certFingerprint is non-empty (spec.md §4.3).
func Dial(hostport, certFingerprint string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: connectTimeout}
	if certFingerprint == "" {
		return dialer.Dial("tcp", hostport)
	}
	return tls.DialWithDialer(&dialer, "tcp", hostport, pinnedTLSConfig(certFingerprint))
}

// Client drives one signaling connection: it writes commands as protocol
// lines and turns incoming lines into Events on events. It also owns the
// per-channel signed-message logs, since verifying and appending a
// SIGNED payload must happen before the resulting ChatMessage event can
// be emitted (spec.md §4.5).
type Client struct {
	conn net.Conn
	wmu  sync.Mutex
	w    *bufio.Writer

	nick    string
	id      identity.Identity
	powBits int

	events chan<- Event

	frag *frag.Assembler

	mu           sync.RWMutex
	boundPubkeys map[string]string // nick -> pubkey hex

	dataDir string
	logMu   sync.Mutex
	logs    map[string]*identity.ChannelLog
}

// NewClient wraps an already-dialed connection. dataDir is where
// per-channel signed logs are persisted (spec.md §6).
func NewClient(conn net.Conn, nick string, id identity.Identity, powBits int, dataDir string, events chan<- Event) *Client {
	return &Client{
		conn:         conn,
		w:            bufio.NewWriter(conn),
		nick:         nick,
		id:           id,
		powBits:      powBits,
		events:       events,
		frag:         frag.NewAssembler(),
		boundPubkeys: make(map[string]string),
		dataDir:      dataDir,
		logs:         make(map[string]*identity.ChannelLog),
	}
}

// Handshake sends NICK/USER immediately, VOIRC_HELLO after helloDelay, and
// JOINs for channels after joinDelay, all via time.AfterFunc so the caller
// is never blocked and the read loop keeps draining the socket in the
// meantime (spec.md §4.3; teacher client/transport.go's own
// timer-over-sleep convention).
func (c *Client) Handshake(channels []string) {
	c.sendLine(fmt.Sprintf("NICK %s", c.nick))
	c.sendLine(fmt.Sprintf("USER %s 0 * :%s", c.nick, c.nick))

	time.AfterFunc(helloDelay, func() {
		sig := c.id.Sign([]byte(c.nick))
		hello := fmt.Sprintf("VOIRC_HELLO:%s:%s:%x", c.nick, c.id.PubkeyHex(), sig)
		c.sendLine(fmt.Sprintf("PRIVMSG %s :%s", pseudoTarget, hello))
	})

	time.AfterFunc(joinDelay, func() {
		for _, ch := range channels {
			c.JoinChannel(ch)
		}
	})
}

// ReadLoop scans lines until the connection closes or read fails, turning
// each into zero or more Events. It returns when the socket is gone so
// the caller (event loop) can react to the disconnection.
func (c *Client) ReadLoop() error {
	scanner := wire.NewLineScanner(c.conn)
	for scanner.Scan() {
		c.handleLine(scanner.Text())
	}
	return scanner.Err()
}

// Close shuts down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// --- outgoing commands ---

func (c *Client) sendLine(line string) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := io.WriteString(c.w, line+wire.CRLF); err != nil {
		log.Printf("[signaling] write: %v", err)
		return
	}
	if err := c.w.Flush(); err != nil {
		log.Printf("[signaling] flush: %v", err)
	}
}

// JoinChannel sends JOIN for channel.
func (c *Client) JoinChannel(channel string) { c.sendLine("JOIN " + channel) }

// PartChannel sends PART for channel.
func (c *Client) PartChannel(channel string) { c.sendLine("PART " + channel) }

// AnnounceRole broadcasts this peer's role to channel (spec.md §4.3).
func (c *Client) AnnounceRole(channel string, role topology.Role) {
	c.privmsg(channel, fmt.Sprintf("VOIRC_ROLE:%s", roleString(role)))
}

// SendModAction broadcasts a moderation action to channel.
func (c *Client) SendModAction(channel, action, target string) {
	c.privmsg(channel, fmt.Sprintf("VOIRC_MOD:%s:%s", action, target))
}

// SendWebRtcSignal fragments payload and sends each chunk as a PRIVMSG to
// target (spec.md §4.4).
func (c *Client) SendWebRtcSignal(target, payload string) {
	for _, chunk := range frag.Split(payload) {
		c.privmsg(target, chunk)
	}
}

// SendPowSet asks the server to change the room's required difficulty.
func (c *Client) SendPowSet(bits int) {
	c.privmsg(pseudoTarget, fmt.Sprintf("VOIRC_POW_SET:%d", bits))
}

// SendMessage authors and signs a chat message for channel, appends it to
// the local log, and broadcasts it (spec.md §3, §4.5).
func (c *Client) SendMessage(channel, text string) error {
	l, err := c.log(channel)
	if err != nil {
		return err
	}
	recent := l.RecentTimestamps(c.nick, 5)
	msg := identity.Author(c.id, c.nick, channel, text, time.Now(), recent)
	if _, err := l.Append(msg); err != nil {
		log.Printf("[signaling] append own message: %v", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("[signaling] marshal message: %w", err)
	}
	c.privmsg(channel, "SIGNED:"+string(raw))
	return nil
}

// History returns channel's locally-logged messages, sorted by timestamp,
// for replay after joining or switching channels (spec.md §4.9).
func (c *Client) History(channel string) ([]identity.Message, error) {
	l, err := c.log(channel)
	if err != nil {
		return nil, err
	}
	return l.Messages(), nil
}

// RequestSync asks target for channel's messages authored after since.
func (c *Client) RequestSync(target, channel string, since int64) {
	req := identity.SyncRequest{Channel: channel, Since: since}
	raw, err := json.Marshal(req)
	if err != nil {
		return
	}
	c.privmsg(target, "VOIRC_SYNC_REQ:"+string(raw))
}

func (c *Client) privmsg(target, payload string) {
	c.sendLine(fmt.Sprintf("PRIVMSG %s :%s", target, payload))
}

// log returns (opening if necessary) the signed-message log for channel.
func (c *Client) log(channel string) (*identity.ChannelLog, error) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	if l, ok := c.logs[channel]; ok {
		return l, nil
	}
	l, err := identity.OpenChannelLog(c.dataDir, channel)
	if err != nil {
		return nil, err
	}
	c.logs[channel] = l
	return l, nil
}

// boundPubkey returns nick's locally-bound pubkey, if any.
func (c *Client) boundPubkey(nick string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pk, ok := c.boundPubkeys[nick]
	return pk, ok
}

func (c *Client) bindPubkey(nick, pubkeyHex string) {
	c.mu.Lock()
	c.boundPubkeys[nick] = pubkeyHex
	c.mu.Unlock()
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("[signaling] event channel full, dropping %T", ev)
	}
}

// --- incoming lines ---

func (c *Client) handleLine(line string) {
	l := parseServerLine(line)
	if l.Verb == "" {
		return
	}

	switch l.Verb {
	case wire.ReplyNickInUse:
		c.emit(NickInUse{})
	case wire.ReplyNamesList:
		c.handleNames(l)
	case "JOIN":
		nick := l.prefixNick()
		if nick != "" && nick != c.nick {
			c.emit(UserJoined{Nick: nick, Role: topology.RolePeer})
		}
	case "PART":
		c.emitLeftIfPeer(l)
	case "QUIT":
		c.emitLeftIfPeer(l)
	case "PRIVMSG":
		c.handlePrivmsg(l)
	case "NOTICE":
		c.handleNotice(l)
	case "PING":
		c.sendLine("PONG " + l.Arg(0))
	}
}

func (c *Client) emitLeftIfPeer(l serverLine) {
	nick := l.prefixNick()
	if nick != "" && nick != c.nick {
		c.emit(UserLeft{Nick: nick})
	}
}

// handleNames turns a 353 reply's member list into one UserJoined per
// already-present member (our own nick excluded).
func (c *Client) handleNames(l serverLine) {
	names := l.Arg(len(l.Params) - 1)
	for _, nick := range strings.Fields(names) {
		if nick != c.nick {
			c.emit(UserJoined{Nick: nick, Role: topology.RolePeer})
		}
	}
}

func (c *Client) handleNotice(l serverLine) {
	text := l.Arg(len(l.Params) - 1)
	switch {
	case strings.HasPrefix(text, "HELLO_OK pow_bits:"):
		bits, _ := strconv.Atoi(strings.TrimPrefix(text, "HELLO_OK pow_bits:"))
		c.emit(HelloOK{Bits: bits})
	case strings.HasPrefix(text, "HELLO_FAILED pow_too_weak:"):
		bits, _ := strconv.Atoi(strings.TrimPrefix(text, "HELLO_FAILED pow_too_weak:"))
		c.emit(PowTooWeak{RequiredBits: bits})
	case strings.HasPrefix(text, "HELLO_FAILED "):
		c.emit(HelloFailed{Reason: strings.TrimPrefix(text, "HELLO_FAILED ")})
	case strings.HasPrefix(text, "VOIRC_POW_REQUIRED:"):
		bits, _ := strconv.Atoi(strings.TrimPrefix(text, "VOIRC_POW_REQUIRED:"))
		c.emit(PowRequirementChanged{Bits: bits})
	}
}

func (c *Client) handlePrivmsg(l serverLine) {
	from := l.prefixNick()
	text := l.Arg(len(l.Params) - 1)
	if from == "" || text == "" {
		return
	}

	switch {
	case strings.HasPrefix(text, frag.Prefix):
		if payload, ok := c.frag.Feed(from, text); ok {
			c.emit(WebRtcSignal{From: from, Payload: payload})
		}
	case strings.HasPrefix(text, "VOIRC_PUBKEY:"):
		c.handlePubkeyAnnounce(strings.TrimPrefix(text, "VOIRC_PUBKEY:"))
	case strings.HasPrefix(text, "VOIRC_HELLO:"):
		c.handlePeerHello(strings.TrimPrefix(text, "VOIRC_HELLO:"))
	case strings.HasPrefix(text, "VOIRC_ROLE:"):
		c.handlePrivileged(from, func() {
			role := parseRole(strings.TrimPrefix(text, "VOIRC_ROLE:"))
			c.emit(UserJoined{Nick: from, Role: role})
		})
	case strings.HasPrefix(text, "VOIRC_MOD:"):
		c.handlePrivileged(from, func() {
			rest := strings.TrimPrefix(text, "VOIRC_MOD:")
			parts := strings.SplitN(rest, ":", 2)
			if len(parts) != 2 {
				return
			}
			c.emit(ModAction{From: from, Action: parts[0], Target: parts[1]})
		})
	case strings.HasPrefix(text, "VOIRC_SYNC_REQ:"):
		c.handlePrivileged(from, func() { c.handleSyncRequest(from, strings.TrimPrefix(text, "VOIRC_SYNC_REQ:")) })
	case strings.HasPrefix(text, "VOIRC_SYNC_RESP:"):
		c.handlePrivileged(from, func() { c.handleSyncResponse(strings.TrimPrefix(text, "VOIRC_SYNC_RESP:")) })
	case strings.HasPrefix(text, "SIGNED:"):
		c.handlePrivileged(from, func() { c.handleSigned(from, strings.TrimPrefix(text, "SIGNED:")) })
	}
}

// handlePrivileged runs fn only if from has a locally-bound pubkey
// (spec.md §4.3's verification rule).
func (c *Client) handlePrivileged(from string, fn func()) {
	if _, known := c.boundPubkey(from); !known {
		return
	}
	fn()
}

func (c *Client) handlePubkeyAnnounce(rest string) {
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return
	}
	c.bindPubkey(parts[0], parts[1])
}

func (c *Client) handlePeerHello(rest string) {
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return
	}
	nick, pubkeyHex, sigHex := parts[0], parts[1], parts[2]
	if err := identity.VerifyNickSignature(nick, pubkeyHex, sigHex); err != nil {
		return
	}
	c.bindPubkey(nick, pubkeyHex)
}

func (c *Client) handleSyncRequest(from, rest string) {
	var req identity.SyncRequest
	if err := json.Unmarshal([]byte(rest), &req); err != nil {
		return
	}
	l, err := c.log(req.Channel)
	if err != nil {
		return
	}
	resp := identity.SyncResponse{Channel: req.Channel, Messages: l.Since(req.Since)}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.privmsg(from, "VOIRC_SYNC_RESP:"+string(raw))
}

func (c *Client) handleSyncResponse(rest string) {
	var resp identity.SyncResponse
	if err := json.Unmarshal([]byte(rest), &resp); err != nil {
		return
	}
	for _, msg := range resp.Messages {
		c.applySignedMessage(msg)
	}
}

func (c *Client) handleSigned(from, rest string) {
	var msg identity.Message
	if err := json.Unmarshal([]byte(rest), &msg); err != nil {
		return
	}
	if msg.Author != from {
		return
	}
	c.applySignedMessage(msg)
}

// applySignedMessage verifies msg against its author's known pubkey (the
// sync-protocol trust anchor, spec.md §4.5) and the local log's
// chain-hash history, appends it if not rejected, and emits ChatMessage
// for newly-appended messages.
func (c *Client) applySignedMessage(msg identity.Message) {
	if bound, known := c.boundPubkey(msg.Author); known && bound != msg.Pubkey {
		return
	}
	l, err := c.log(msg.Channel)
	if err != nil {
		return
	}
	status, err := identity.VerifyMessage(msg, time.Now(), l.RecentTimestamps(msg.Author, 5))
	if err != nil || status == identity.StatusRejected {
		l.IncrementRejected()
		return
	}
	added, _ := l.Append(msg)
	if !added {
		return
	}
	c.emit(ChatMessage{
		Channel:    msg.Channel,
		From:       msg.Author,
		Text:       msg.Content,
		Suspicious: status == identity.StatusSuspicious,
	})
}

func roleString(r topology.Role) string {
	switch r {
	case topology.RoleHost:
		return "host"
	case topology.RoleMod:
		return "mod"
	default:
		return "peer"
	}
}

func parseRole(s string) topology.Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "host":
		return topology.RoleHost
	case "mod":
		return topology.RoleMod
	default:
		return topology.RolePeer
	}
}
