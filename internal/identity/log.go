package identity

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ChannelLog is an append-only, id-deduplicated, timestamp-sorted log of
// signed messages for one channel, persisted as one JSON-lines file
// (spec.md §6: "<data>/voirc/logs/<channel>.jsonl").
type ChannelLog struct {
	mu        sync.RWMutex
	path      string
	messages  []Message
	ids       map[string]struct{}
	rejected  uint64 // sync-failure counter (spec.md §4.5)
}

// OpenChannelLog loads an existing log file at dataDir/logs/<channel>.jsonl
// if present, or starts an empty one. channel is used verbatim as the
// filename stem, including its leading '#'.
func OpenChannelLog(dataDir, channel string) (*ChannelLog, error) {
	path := filepath.Join(dataDir, "logs", channel+".jsonl")
	l := &ChannelLog{path: path, ids: make(map[string]struct{})}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("[identity] open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var m Message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			continue // tolerate a corrupted trailing line rather than fail to start
		}
		l.insertLocked(m)
	}
	return l, nil
}

// insertLocked appends m if its id is new, keeping messages sorted by
// timestamp. Caller must hold l.mu.
func (l *ChannelLog) insertLocked(m Message) bool {
	if _, dup := l.ids[m.ID]; dup {
		return false
	}
	l.ids[m.ID] = struct{}{}
	idx := sort.Search(len(l.messages), func(i int) bool {
		return l.messages[i].Timestamp > m.Timestamp
	})
	l.messages = append(l.messages, Message{})
	copy(l.messages[idx+1:], l.messages[idx:])
	l.messages[idx] = m
	return true
}

// Append adds m to the log if its id is not already present (idempotence
// law: appending the same message twice leaves the log unchanged after the
// first append) and persists it to disk. Returns false without error if m
// was already present.
func (l *ChannelLog) Append(m Message) (bool, error) {
	l.mu.Lock()
	added := l.insertLocked(m)
	l.mu.Unlock()
	if !added {
		return false, nil
	}

	if err := l.persist(m); err != nil {
		// spec.md §7: disk write failure on append is non-fatal; the
		// message is retained in memory and the error is only logged by
		// the caller.
		return true, fmt.Errorf("[identity] persist %s: %w", l.path, err)
	}
	return true, nil
}

// persist appends m's JSON encoding as one line to the log file.
func (l *ChannelLog) persist(m Message) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = f.Write(append(raw, '\n'))
	return err
}

// Messages returns a copy of the log's messages, sorted by timestamp.
func (l *ChannelLog) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Since returns messages with Timestamp > since, sorted by timestamp.
func (l *ChannelLog) Since(since int64) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := sort.Search(len(l.messages), func(i int) bool {
		return l.messages[i].Timestamp > since
	})
	out := make([]Message, len(l.messages)-idx)
	copy(out, l.messages[idx:])
	return out
}

// RecentTimestamps returns up to the last n timestamps authored by nick, in
// the order they appear in the log (oldest to newest), for use as the
// input to ChainHash when authoring the next message.
func (l *ChannelLog) RecentTimestamps(nick string, n int) []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []int64
	for _, m := range l.messages {
		if m.Author == nick {
			out = append(out, m.Timestamp)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// IncrementRejected bumps the sync rejection counter (spec.md §4.5).
func (l *ChannelLog) IncrementRejected() {
	l.mu.Lock()
	l.rejected++
	l.mu.Unlock()
}

// RejectedCount returns the number of sync messages rejected so far.
func (l *ChannelLog) RejectedCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rejected
}
