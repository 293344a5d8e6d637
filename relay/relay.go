package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
)

// Handshake and frame size limits (spec.md §4.8).
const (
	minNickLen    = 1
	maxNickLen    = 64
	minPayloadLen = 1
	maxPayloadLen = 4096
)

// Relay accepts TCP connections, reads each client's handshake nick, and
// forwards every subsequent frame to all other connected clients tagged
// with the sender's nick.
type Relay struct {
	addr  string
	state *RelayState
}

// NewRelay returns a Relay that will listen on addr.
func NewRelay(addr string, state *RelayState) *Relay {
	return &Relay{addr: addr, state: state}
}

// Run listens and serves until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("[relay] listen: %w", err)
	}
	log.Printf("[relay] listening on %s", r.addr)
	return r.Serve(ctx, ln)
}

// Serve accepts and dispatches connections from ln until ctx is canceled.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
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
			return fmt.Errorf("[relay] accept: %w", err)
		}
		go r.handleConn(conn)
	}
}

// handleConn performs the handshake, then forwards frames until the
// connection closes or sends malformed framing. Recovers its own panics
// so one bad connection cannot take down the relay.
func (r *Relay) handleConn(conn net.Conn) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[relay] recovered panic on %s: %v", conn.RemoteAddr(), rec)
		}
	}()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	nick, err := readHandshake(reader)
	if err != nil {
		log.Printf("[relay] handshake from %s: %v", conn.RemoteAddr(), err)
		return
	}

	addr := conn.RemoteAddr().String()
	out := make(chan []byte, 64)
	r.state.Register(addr, nick, out)
	defer r.state.Remove(addr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w := bufio.NewWriter(conn)
		for frame := range out {
			if _, err := w.Write(frame); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}()

	for {
		payload, err := readFrame(reader)
		if err != nil {
			break
		}
		envelope := encodeEnvelope(nick, payload)
		r.state.BroadcastExcept(addr, envelope)
	}

	close(out)
	<-writerDone
}

// readHandshake reads `[u8 nick_len][nick_bytes]`, nick_len ∈ [1,64].
func readHandshake(r *bufio.Reader) (string, error) {
	nickLen, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if int(nickLen) < minNickLen || int(nickLen) > maxNickLen {
		return "", fmt.Errorf("invalid nick length %d", nickLen)
	}
	buf := make([]byte, nickLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readFrame reads client→relay framing: `[u16 BE len][payload]`, len ∈
// [1,4096].
func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(lenBuf[:]))
	if n < minPayloadLen || n > maxPayloadLen {
		return nil, fmt.Errorf("invalid frame length %d", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// encodeEnvelope builds relay→client framing:
// `[u8 nick_len][nick][u16 BE len][payload]`.
func encodeEnvelope(nick string, payload []byte) []byte {
	out := make([]byte, 0, 1+len(nick)+2+len(payload))
	out = append(out, byte(len(nick)))
	out = append(out, nick...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	return out
}
