package main

import (
	"context"
	"log"
	"time"

	"github.com/dustin/go-humanize"
)

// RunMetrics logs cumulative relay throughput every interval until ctx is
// canceled, the dropped-for-cause teacher dependency go-humanize's second
// wired call site alongside MSM's transfer logging.
func RunMetrics(ctx context.Context, state *RelayState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clients := state.Count()
			frames, bytes, dropped := state.Stats()
			if clients == 0 && frames == 0 {
				continue
			}
			log.Printf("[relay] clients=%d frames=%s bytes=%s dropped=%s",
				clients, humanize.Comma(int64(frames)), humanize.Bytes(bytes), humanize.Comma(int64(dropped)))
		}
	}
}
