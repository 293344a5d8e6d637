package main

import (
	"context"
	"log"
	"time"
)

// RunMetrics logs connection counts every interval until ctx is canceled.
// Same ticker-loop shape as teacher server/metrics.go's RunMetrics, swapped
// from datagram/byte throughput to line-protocol connection counts.
func RunMetrics(ctx context.Context, state *ServerState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := state.Count()
			if n > 0 {
				log.Printf("[metrics] clients=%d pow_required_bits=%d", n, state.PowRequiredBits())
			}
		}
	}
}
