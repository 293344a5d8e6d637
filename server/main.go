package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ciphernom/voirc/internal/voirccfg"
)

func main() {
	if len(os.Args) > 1 && RunCLI(os.Args[1:]) {
		return
	}

	addr := flag.String("addr", ":6667", "signaling listen address")
	useTLS := flag.Bool("tls", true, "wrap connections in a self-signed TLS certificate")
	certValidity := flag.Duration("cert-validity", 365*24*time.Hour, "self-signed TLS certificate validity")
	powBits := flag.Int("pow-bits", 0, "initial pow_required_bits (overrides config.toml when > 0)")
	flag.Parse()

	cfg := voirccfg.Load()
	initialBits := cfg.PowRequiredBits
	if *powBits > 0 {
		initialBits = *powBits
	}

	var tlsConfig *tls.Config
	if *useTLS {
		cfgDir, err := voirccfg.Path()
		if err != nil {
			log.Fatalf("[server] %v", err)
		}
		tlsDir := filepath.Join(filepath.Dir(cfgDir), "tls")
		cfgObj, fingerprint, err := loadOrGenerateTLSConfig(tlsDir, *certValidity)
		if err != nil {
			log.Fatalf("[server] %v", err)
		}
		log.Printf("[server] TLS certificate fingerprint: %s", fingerprint)
		tlsConfig = cfgObj
	}

	state := NewServerState(initialBits)
	srv := NewServer(*addr, tlsConfig, state, cfg.IsBanned)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		cancel()
	}()

	go RunMetrics(ctx, state, 30*time.Second)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("[server] %v", err)
	}
}
