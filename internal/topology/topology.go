// Package topology decides which peers in a room should hold direct media
// sessions with each other, so rooms of tens of participants do not
// degenerate into full mesh (spec.md §4.6).
package topology

// Role mirrors the peer role axis of spec.md §3's peer record. Defined
// here (rather than imported from internal/state) because TOP sits below
// STATE in the dependency order (spec.md §2) — STATE depends on TOP, not
// the other way around — but both need the same three-value role.
type Role int

const (
	RolePeer Role = iota
	RoleMod
	RoleHost
)

// isSuperpeer reports whether role acts as a superpeer: a Host or a Mod
// (spec.md glossary: "Superpeer: a host or a mod; relays audio for regular
// peers").
func isSuperpeer(role Role) bool {
	return role == RoleHost || role == RoleMod
}

// ShouldConnectTo implements the exact truth table of spec.md §4.6:
//
//	us        peer      anySuperpeers  connect?
//	superpeer superpeer  —             yes
//	peer      superpeer  —             yes
//	superpeer peer       —             yes
//	peer      peer       false         yes (full-mesh fallback)
//	peer      peer       true          no
func ShouldConnectTo(usRole, peerRole Role, anySuperpeersInRoom bool) bool {
	usSuper := isSuperpeer(usRole)
	peerSuper := isSuperpeer(peerRole)

	if usSuper || peerSuper {
		return true
	}
	return !anySuperpeersInRoom
}

// IsOfferer reports whether usNick should send the initial offer when
// connecting to peerNick: only the lexicographically lesser nick initiates
// (spec.md §4.6, invariant 6). Ties (equal nicks) never occur in practice
// since nicks are unique per session; IsOfferer returns false for equal
// input rather than picking arbitrarily.
func IsOfferer(usNick, peerNick string) bool {
	return usNick < peerNick
}

// ForwardTargets returns the nicks a superpeer should forward senderNick's
// decoded audio packet to: every other connected peer except the sender
// (spec.md §4.6, invariant 7). Regular peers never forward — callers should
// only invoke this when selfRole is a superpeer.
func ForwardTargets(selfRole Role, senderNick string, peers []string) []string {
	if !isSuperpeer(selfRole) {
		return nil
	}
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		if p == senderNick {
			continue
		}
		out = append(out, p)
	}
	return out
}
