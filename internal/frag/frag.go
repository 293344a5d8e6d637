// Package frag chunks out-of-band WebRTC signaling payloads (offers,
// answers, ICE candidates) into sub-512-byte pieces for transport over the
// signaling server's line protocol, and reassembles them on the other end
// (spec.md §4.4).
package frag

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChunkSize is the maximum payload size per fragment.
const ChunkSize = 400

// Expiry is how long a partially-received message is retained before being
// dropped as stale.
const Expiry = 60 * time.Second

// Prefix is the well-known PRIVMSG payload prefix for fragments.
const Prefix = "WRTC:"

// Split breaks payload into ChunkSize-byte pieces and renders each as a
// wire-ready "WRTC:[<i>/<N>|<id>]<chunk>" line. id is derived from a fresh
// uuid so it is stable across all chunks of one message.
func Split(payload string) []string {
	id := newFragmentID()
	total := (len(payload) + ChunkSize - 1) / ChunkSize
	if total == 0 {
		total = 1
	}
	out := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, fmt.Sprintf("%s[%d/%d|%s]%s", Prefix, i+1, total, id, payload[start:end]))
	}
	return out
}

// newFragmentID returns an 8-character identifier, the first 4 bytes of a
// fresh uuid hex-encoded (keeps id generation inside the one dependency
// already used for identifiers elsewhere in this repo).
func newFragmentID() string {
	u := uuid.New()
	raw := u[:]
	return fmt.Sprintf("%02x%02x%02x%02x", raw[0], raw[1], raw[2], raw[3])
}

// parsed is one decoded fragment line.
type parsed struct {
	seq   int
	total int
	id    string
	chunk string
}

// parseLine decodes a "WRTC:[<i>/<N>|<id>]<chunk>" line. Malformed lines
// return ok=false so the caller can silently drop them (spec.md §4.4).
func parseLine(line string) (p parsed, ok bool) {
	if !strings.HasPrefix(line, Prefix) {
		return parsed{}, false
	}
	rest := line[len(Prefix):]
	if !strings.HasPrefix(rest, "[") {
		return parsed{}, false
	}
	closeIdx := strings.IndexByte(rest, ']')
	if closeIdx < 0 {
		return parsed{}, false
	}
	header := rest[1:closeIdx]
	chunk := rest[closeIdx+1:]

	slashIdx := strings.IndexByte(header, '/')
	pipeIdx := strings.IndexByte(header, '|')
	if slashIdx < 0 || pipeIdx < 0 || pipeIdx < slashIdx {
		return parsed{}, false
	}
	seq, err1 := strconv.Atoi(header[:slashIdx])
	total, err2 := strconv.Atoi(header[slashIdx+1 : pipeIdx])
	id := header[pipeIdx+1:]
	if err1 != nil || err2 != nil || seq < 1 || total < 1 || seq > total || id == "" {
		return parsed{}, false
	}
	return parsed{seq: seq, total: total, id: id, chunk: chunk}, true
}

// partial tracks the chunks received so far for one (sender, id) pair.
type partial struct {
	total      int
	chunks     map[int]string
	lastUpdate time.Time
}

// Assembler reassembles fragments from many senders and message ids,
// expiring stale partial buffers after Expiry (spec.md §4.4, §5).
type Assembler struct {
	mu    sync.Mutex
	parts map[string]*partial   // key: sender + "\x00" + id
	done  map[string]time.Time  // completed keys, so re-delivery is a no-op; value is completion time
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		parts: make(map[string]*partial),
		done:  make(map[string]time.Time),
	}
}

func key(sender, id string) string { return sender + "\x00" + id }

// Feed processes one incoming line from sender. It returns the reassembled
// payload and ok=true once the final chunk for that (sender, id) arrives.
// Malformed lines and re-delivery of an already-complete (sender, id) are
// both silently ignored (idempotence law).
func (a *Assembler) Feed(sender, line string) (payload string, ok bool) {
	p, valid := parseLine(line)
	if !valid {
		return "", false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.expireLocked()

	k := key(sender, p.id)
	if _, alreadyDone := a.done[k]; alreadyDone {
		return "", false
	}

	buf, exists := a.parts[k]
	if !exists {
		buf = &partial{total: p.total, chunks: make(map[int]string)}
		a.parts[k] = buf
	}
	buf.chunks[p.seq] = p.chunk
	buf.lastUpdate = time.Now()

	if len(buf.chunks) != buf.total {
		return "", false
	}

	var sb strings.Builder
	for i := 1; i <= buf.total; i++ {
		sb.WriteString(buf.chunks[i])
	}
	delete(a.parts, k)
	a.done[k] = time.Now()
	return sb.String(), true
}

// expireLocked drops partial buffers idle for longer than Expiry, and forgets
// completed-message markers older than Expiry. Caller must hold a.mu.
func (a *Assembler) expireLocked() {
	cutoff := time.Now().Add(-Expiry)
	for k, buf := range a.parts {
		if buf.lastUpdate.Before(cutoff) {
			delete(a.parts, k)
		}
	}
	for k, t := range a.done {
		if t.Before(cutoff) {
			delete(a.done, k)
		}
	}
}
