package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"
)

func main() {
	addr := flag.String("addr", ":7667", "relay listen address")
	flag.Parse()

	state := NewRelayState()
	relay := NewRelay(*addr, state)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[relay] shutting down...")
		cancel()
	}()

	go RunMetrics(ctx, state, 30*time.Second)

	if err := relay.Run(ctx); err != nil {
		log.Fatalf("[relay] %v", err)
	}
}
