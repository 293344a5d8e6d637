package identity

import "context"

// MineAsync runs Mine on a dedicated goroutine so CPU-bound mining never
// blocks the caller's event loop (spec.md §5: "nick mining (blocking
// thread)"). The returned channel receives exactly one result and is then
// closed; if ctx is cancelled before mining completes, the channel is
// closed without a value.
func MineAsync(ctx context.Context, base, pubkeyHex string, bits int) <-chan MinedNick {
	out := make(chan MinedNick, 1)
	go func() {
		defer close(out)
		result := Mine(base, pubkeyHex, bits)
		if ctx.Err() != nil {
			return
		}
		out <- result
	}()
	return out
}
