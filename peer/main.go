package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/ciphernom/voirc/internal/desc"
	"github.com/ciphernom/voirc/internal/identity"
	"github.com/ciphernom/voirc/internal/state"
	"github.com/ciphernom/voirc/internal/topology"
	"github.com/ciphernom/voirc/internal/voirccfg"
)

// dataSubdir holds the standing identity key, the per-channel signed logs
// and received files, all under the user config directory
// (os.UserConfigDir); no separate data directory is used.
const dataSubdir = "voirc"

// keyFilename is the persisted Ed25519 seed's filename inside dataSubdir.
const keyFilename = "identity.key"

func dataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("[peer] config dir: %w", err)
	}
	return filepath.Join(dir, dataSubdir), nil
}

func main() {
	descriptorArg := flag.String("connect", "", "voirc:// connection descriptor")
	nickArg := flag.String("nick", "", "base nick to mine a PoW-suffixed nick from; defaults to $USER")
	flag.Parse()

	if *descriptorArg == "" {
		log.Fatal("[peer] -connect is required")
	}

	d, err := desc.Parse(*descriptorArg)
	if err != nil {
		log.Fatalf("[peer] parse descriptor: %v", err)
	}
	if len(d.Channels) == 0 {
		log.Fatal("[peer] descriptor carries no channels")
	}

	dir, err := dataDir()
	if err != nil {
		log.Fatal(err)
	}

	id, err := identity.LoadOrCreate(filepath.Join(dir, keyFilename))
	if err != nil {
		log.Fatalf("[peer] %v", err)
	}

	base := *nickArg
	if base == "" {
		base = os.Getenv("USER")
	}
	if base == "" {
		base = "anon"
	}

	requiredBits := 0
	if d.PowRequiredBits != nil {
		requiredBits = int(*d.PowRequiredBits)
	}
	mined := identity.Mine(base, id.PubkeyHex(), requiredBits)
	if mined.Attempts > 0 {
		log.Printf("[peer] mined nick %s in %d attempts (%d bits)", mined.Nick, mined.Attempts, mined.Bits)
	}

	fingerprint := ""
	if d.CertFingerprint != nil {
		fingerprint = *d.CertFingerprint
	}
	conn, err := Dial(fmt.Sprintf("%s:%d", d.Host, d.Port), fingerprint)
	if err != nil {
		log.Fatalf("[peer] connect: %v", err)
	}

	cfg := voirccfg.Load()

	events := make(chan Event, 256)
	audioIn := make(chan AudioFrame, 64)

	client := NewClient(conn, mined.Nick, id, requiredBits, dir, events)
	msm := NewMSM(mined.Nick, cfg, client.SendWebRtcSignal, events, audioIn)

	st := state.New()
	st.SetSelf(mined.Nick, topology.RolePeer)

	loop := NewEventLoop(st, client, msm, cfg, d, dir, events, audioIn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[peer] shutting down...")
		st.CommandCh <- state.Command{Kind: state.CommandShutdown}
		cancel()
	}()

	go func() {
		if err := client.ReadLoop(); err != nil {
			select {
			case events <- signalingClosed{Err: err}:
			default:
			}
		}
	}()

	client.Handshake(d.Channels)

	loop.Run(ctx)
}
