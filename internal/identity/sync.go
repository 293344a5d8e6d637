package identity

import "time"

// SyncRequest asks a peer for every message in channel authored after
// since (spec.md §4.5).
type SyncRequest struct {
	Channel string `json:"channel"`
	Since   int64  `json:"since"`
}

// SyncResponse answers a SyncRequest.
type SyncResponse struct {
	Channel  string    `json:"channel"`
	Messages []Message `json:"messages"`
}

// TrustAnchor resolves a nick to its known-bound pubkey, when one is known
// locally. A sync recipient uses this to reject messages whose pubkey does
// not match the nick's previously-observed binding.
type TrustAnchor func(nick string) (pubkeyHex string, known bool)

// ApplySync verifies each message in resp against log and anchor, appending
// the ones that pass (StatusOK or StatusSuspicious). Rejected messages
// increment log's rejection counter and are not appended. Returns the
// number of messages appended and the number newly tagged suspicious.
func ApplySync(log *ChannelLog, resp SyncResponse, anchor TrustAnchor, now time.Time) (appended, suspicious int) {
	for _, m := range resp.Messages {
		if anchor != nil {
			if boundPubkey, ok := anchor(m.Author); ok && boundPubkey != m.Pubkey {
				log.IncrementRejected()
				continue
			}
		}

		status, err := VerifyMessage(m, now, log.RecentTimestamps(m.Author, chainWindow))
		if err != nil || status == StatusRejected {
			log.IncrementRejected()
			continue
		}

		added, _ := log.Append(m)
		if !added {
			continue
		}
		appended++
		if status == StatusSuspicious {
			suspicious++
		}
	}
	return appended, suspicious
}
