package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ciphernom/voirc/internal/identity"
	"github.com/ciphernom/voirc/internal/wire"
)

// Server accepts signaling connections and dispatches their lines against
// a shared ServerState. Shaped after teacher server/server.go's listen-
// accept-dispatch loop, swapped from an HTTPS+WebSocket mux to a raw
// line-protocol TCP/TLS listener.
type Server struct {
	addr      string
	tlsConfig *tls.Config // nil for a plaintext listener
	state     *ServerState
	isBanned  func(identifier string) bool
}

// NewServer returns a Server that will listen on addr, upgrading accepted
// connections to TLS when tlsConfig is non-nil. isBanned reports whether a
// nick or pubkey hex appears in config.toml's banned_users list; pass nil
// to disable ban checks.
func NewServer(addr string, tlsConfig *tls.Config, state *ServerState, isBanned func(string) bool) *Server {
	if isBanned == nil {
		isBanned = func(string) bool { return false }
	}
	return &Server{addr: addr, tlsConfig: tlsConfig, state: state, isBanned: isBanned}
}

// Run listens and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	var ln net.Listener
	var err error
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", s.addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		return fmt.Errorf("[server] listen: %w", err)
	}
	log.Printf("[server] listening on %s", s.addr)
	return s.Serve(ctx, ln)
}

// Serve accepts and dispatches connections from ln until ctx is canceled.
// Split out from Run so tests can hand it a listener bound to an
// ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("[server] accept: %w", err)
		}

		if s.state.Count() >= maxTotalClients {
			conn.Close()
			continue
		}
		host := addrHost(conn.RemoteAddr().String())
		if s.state.CountFromHost(host) >= maxClientsPerHost {
			conn.Close()
			continue
		}

		go s.handleConn(ctx, conn)
	}
}

// handleConn drives one client's line protocol session to completion. A
// panic from within (a "poisoned lock" in the original Rust source has no
// Go analogue, since sync.RWMutex cannot be poisoned — see DESIGN.md) is
// recovered here so it terminates only this one connection rather than the
// listener.
func (s *Server) handleConn(ctx context.Context, netConn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[server] recovered panic on %s: %v", netConn.RemoteAddr(), r)
		}
	}()
	defer netConn.Close()

	addr := netConn.RemoteAddr().String()
	out := make(chan string, 64)
	s.state.Register(addr, out)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w := bufio.NewWriter(netConn)
		for line := range out {
			if _, err := io.WriteString(w, line+wire.CRLF); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(rateLimitPerSecond), rateLimitBurst)
	scanner := wire.NewLineScanner(netConn)

	for {
		netConn.SetReadDeadline(time.Now().Add(readTimeout))
		if !scanner.Scan() {
			break
		}
		if !limiter.Allow() {
			continue
		}
		line := scanner.Text()
		s.dispatch(addr, line)
	}

	s.disconnect(addr)
	close(out)
	<-writerDone
}

// dispatch parses and handles one line from addr. Recovers its own panics
// so one malformed command cannot abort the read loop early.
func (s *Server) dispatch(addr, line string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[server] recovered panic handling %q from %s: %v", line, addr, r)
		}
	}()

	cmd := parseCommand(line)
	if cmd.Verb == "" {
		return
	}

	switch cmd.Verb {
	case "NICK":
		s.handleNick(addr, cmd)
	case "USER":
		s.handleUser(addr, cmd)
	case "JOIN":
		s.handleJoin(addr, cmd)
	case "PART":
		s.handlePart(addr, cmd)
	case "PRIVMSG":
		s.handlePrivmsg(addr, cmd)
	case "KICK":
		s.handleKick(addr, cmd)
	case "PING":
		s.state.SendTo(addr, "PONG "+cmd.Arg(0))
	case "CAP":
		s.state.SendTo(addr, wire.Origin+" CAP * LS :")
	}
}

func (s *Server) handleNick(addr string, cmd Command) {
	nick := cmd.Arg(0)
	if nick == "" {
		return
	}
	if !s.state.StageNick(addr, nick) {
		s.state.SendTo(addr, numeric(wire.ReplyNickInUse, nick, "Nickname is already in use"))
	}
}

func (s *Server) handleUser(addr string, cmd Command) {
	rec, ok := s.state.Client(addr)
	if !ok || rec.Nick == "" {
		return
	}
	s.state.SendTo(addr, numeric(wire.ReplyWelcome, rec.Nick, "Welcome to voirc"))
	s.state.SendTo(addr, numeric(wire.ReplyNoMOTD, rec.Nick, "MOTD File is missing"))
	s.state.SendTo(addr, notice(rec.Nick, fmt.Sprintf("VOIRC_POW_REQUIRED:%d", s.state.PowRequiredBits())))
}

func (s *Server) handleJoin(addr string, cmd Command) {
	channel := cmd.Arg(0)
	rec, ok := s.state.Client(addr)
	if !ok || rec.Nick == "" || channel == "" {
		return
	}

	s.state.Join(channel, addr)
	joinLine := wire.UserPrefix(rec.Nick, "voirc") + " JOIN " + channel
	members := s.state.ChannelMembers(channel)
	s.state.BroadcastToAddrs(members, joinLine)

	names := make([]string, 0, len(members))
	for _, m := range members {
		if other, ok := s.state.Client(m); ok && other.Nick != "" {
			names = append(names, other.Nick)
		}
	}
	s.state.SendTo(addr, numeric(wire.ReplyNamesList, rec.Nick, channel+" :"+strings.Join(names, " ")))
	s.state.SendTo(addr, numeric(wire.ReplyEndOfNames, rec.Nick, channel+" :End of /NAMES list"))
}

func (s *Server) handlePart(addr string, cmd Command) {
	channel := cmd.Arg(0)
	rec, ok := s.state.Client(addr)
	if !ok || rec.Nick == "" || channel == "" {
		return
	}
	remaining := s.state.Part(channel, addr)
	partLine := wire.UserPrefix(rec.Nick, "voirc") + " PART " + channel
	s.state.SendTo(addr, partLine)
	s.state.BroadcastToAddrs(remaining, partLine)
}

func (s *Server) handlePrivmsg(addr string, cmd Command) {
	target := cmd.Arg(0)
	text := cmd.Arg(1)
	rec, ok := s.state.Client(addr)
	if !ok || rec.Nick == "" || target == "" {
		return
	}

	if target == "voirc" {
		s.handleVoircPseudo(addr, rec, text)
		return
	}

	if bound, known := s.state.NickBoundPubkey(rec.Nick); known && bound != "" && !rec.Authenticated {
		return
	}

	msgLine := wire.UserPrefix(rec.Nick, "voirc") + " PRIVMSG " + target + " :" + text

	if strings.HasPrefix(target, "#") {
		if !s.state.InChannel(target, addr) {
			return
		}
		members := s.state.ChannelMembers(target)
		dest := make([]string, 0, len(members))
		for _, m := range members {
			if m != addr {
				dest = append(dest, m)
			}
		}
		s.state.BroadcastToAddrs(dest, msgLine)
		return
	}

	if other, ok := s.state.ClientByNick(target); ok {
		s.state.SendTo(other.Addr, msgLine)
	}
}

func (s *Server) handleKick(addr string, cmd Command) {
	channel := cmd.Arg(0)
	targetNick := cmd.Arg(1)
	reason := cmd.Arg(2)
	rec, ok := s.state.Client(addr)
	if !ok || !rec.Authenticated || channel == "" || targetNick == "" {
		return
	}
	target, ok := s.state.ClientByNick(targetNick)
	if !ok {
		return
	}
	remaining := s.state.Part(channel, target.Addr)
	kickLine := wire.UserPrefix(rec.Nick, "voirc") + " KICK " + channel + " " + targetNick + " :" + reason
	s.state.SendTo(target.Addr, kickLine)
	s.state.BroadcastToAddrs(remaining, kickLine)
}

// handleVoircPseudo implements spec.md §4.2's pseudo-client: VOIRC_HELLO
// identity binding and VOIRC_POW_SET difficulty changes, both delivered
// as PRIVMSG voirc text.
func (s *Server) handleVoircPseudo(addr string, rec ClientRecord, text string) {
	switch {
	case strings.HasPrefix(text, "VOIRC_HELLO:"):
		s.handleHello(addr, rec, strings.TrimPrefix(text, "VOIRC_HELLO:"))
	case strings.HasPrefix(text, "VOIRC_POW_SET:"):
		s.handlePowSet(addr, rec, strings.TrimPrefix(text, "VOIRC_POW_SET:"))
	}
}

func (s *Server) handleHello(addr string, rec ClientRecord, rest string) {
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		s.state.SendTo(addr, notice(rec.Nick, "HELLO_FAILED invalid_signature"))
		return
	}
	nick, pubkeyHex, sigHex := parts[0], parts[1], parts[2]

	if err := identity.VerifyNickSignature(nick, pubkeyHex, sigHex); err != nil {
		reason := "invalid_signature"
		if err == identity.ErrInvalidPubkey {
			reason = "invalid_pubkey"
		}
		s.state.SendTo(addr, notice(rec.Nick, "HELLO_FAILED "+reason))
		return
	}
	if nick != rec.Nick {
		s.state.SendTo(addr, notice(rec.Nick, "HELLO_FAILED nick_mismatch"))
		return
	}
	if s.isBanned(nick) || s.isBanned(pubkeyHex) {
		s.state.SendTo(addr, notice(rec.Nick, "HELLO_FAILED banned"))
		return
	}
	required := s.state.PowRequiredBits()
	if !identity.Verify(nick, pubkeyHex, required) {
		s.state.SendTo(addr, notice(rec.Nick, fmt.Sprintf("HELLO_FAILED pow_too_weak:%d", required)))
		return
	}

	s.state.Authenticate(addr, nick, pubkeyHex)
	actual := identity.ActualBits(nick, pubkeyHex)
	s.state.SendTo(addr, notice(nick, fmt.Sprintf("HELLO_OK pow_bits:%d", actual)))

	pubkeyLine := wire.Origin + " PRIVMSG * :" + fmt.Sprintf("VOIRC_PUBKEY:%s:%s", nick, pubkeyHex)
	seen := make(map[string]bool)
	for _, channel := range s.state.Channels(addr) {
		for _, m := range s.state.ChannelMembers(channel) {
			if m != addr {
				seen[m] = true
			}
		}
	}
	others := make([]string, 0, len(seen))
	for m := range seen {
		others = append(others, m)
	}
	s.state.BroadcastToAddrs(others, pubkeyLine)
}

func (s *Server) handlePowSet(addr string, rec ClientRecord, rest string) {
	if !rec.Authenticated {
		return
	}
	bits, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return
	}
	if identity.CheckBits(bits) != nil {
		return
	}
	s.state.SetPowRequiredBits(bits)
	s.state.BroadcastAll(notice("*", fmt.Sprintf("VOIRC_POW_REQUIRED:%d", bits)))
}

// disconnect removes addr's state and broadcasts one quit notice per peer
// that shared a channel with it (spec.md §4.2).
func (s *Server) disconnect(addr string) {
	peers, nick := s.state.Remove(addr)
	if nick == "" {
		return
	}
	quitLine := wire.UserPrefix(nick, "voirc") + " QUIT :Connection closed"
	s.state.BroadcastToAddrs(peers, quitLine)
}

func numeric(code, nick, rest string) string {
	return wire.Origin + " " + code + " " + nick + " " + rest
}

func notice(nick, text string) string {
	return wire.Origin + " NOTICE " + nick + " :" + text
}
