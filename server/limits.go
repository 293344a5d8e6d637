package main

import (
	"net"
	"time"
)

// Connection caps (spec.md §4.2).
const (
	maxTotalClients   = 100
	maxClientsPerHost = 5
)

// rateLimitPerSecond and rateLimitBurst bound per-connection line
// processing throughput, an additional resource guard layered on top of
// the hard connection caps above (teacher server/limits.go establishes
// the precedent of a dedicated limits file; golang.org/x/time/rate
// supplies the token bucket itself).
const (
	rateLimitPerSecond = 20
	rateLimitBurst     = 40
)

// readTimeout disconnects a client that sends nothing (not even a PING)
// for this long.
const readTimeout = 5 * time.Minute

// addrHost strips the port from a "host:port" address, returning addr
// unchanged if it has no port.
func addrHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
