package main

import "strings"

// serverLine is one parsed line received from the signaling server: an
// optional ":prefix" (origin or "<nick>!voirc@<host>"), a verb, and
// middle/trailing parameters (spec.md §4.2, §6). Mirrors the server's own
// server/protocol.go tokenizer, extended to strip the leading prefix the
// server always sends on relayed lines.
type serverLine struct {
	Prefix string // without the leading ':'; "" if absent
	Verb   string
	Params []string
}

// Arg returns Params[i], or "" if there's no such parameter.
func (l serverLine) Arg(i int) string {
	if i < 0 || i >= len(l.Params) {
		return ""
	}
	return l.Params[i]
}

// prefixNick extracts the nick portion of a "nick!voirc@host" prefix, or
// returns the prefix unchanged if it carries no '!' (e.g. the bare server
// origin "voirc").
func (l serverLine) prefixNick() string {
	if idx := strings.IndexByte(l.Prefix, '!'); idx >= 0 {
		return l.Prefix[:idx]
	}
	return l.Prefix
}

// parseServerLine tokenizes one line from the signaling connection.
func parseServerLine(line string) serverLine {
	line = strings.TrimSpace(line)
	if line == "" {
		return serverLine{}
	}

	var prefix string
	if strings.HasPrefix(line, ":") {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return serverLine{}
		}
		prefix = line[1:sp]
		line = line[sp+1:]
	}

	rest := line
	var params []string
	if idx := strings.Index(rest, " :"); idx >= 0 {
		trailing := rest[idx+2:]
		fields := strings.Fields(rest[:idx])
		if len(fields) == 0 {
			return serverLine{}
		}
		params = append(fields[1:], trailing)
		return serverLine{Prefix: prefix, Verb: fields[0], Params: params}
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return serverLine{}
	}
	return serverLine{Prefix: prefix, Verb: fields[0], Params: fields[1:]}
}
