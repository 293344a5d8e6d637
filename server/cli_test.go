package main

import (
	"path/filepath"
	"testing"
)

func TestCliKeygenAndMine(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "identity.key")

	if !RunCLI([]string{"keygen", keyPath}) {
		t.Fatal("expected keygen to be handled")
	}
	if !RunCLI([]string{"mine", keyPath, "alice", "0"}) {
		t.Fatal("expected mine to be handled")
	}
}

func TestRunCLIUnknownSubcommandFallsThrough(t *testing.T) {
	if RunCLI([]string{"serve-forever"}) {
		t.Fatal("expected unknown subcommand to fall through to serve mode")
	}
	if RunCLI(nil) {
		t.Fatal("expected empty args to fall through to serve mode")
	}
}

func TestRunCLIVersion(t *testing.T) {
	if !RunCLI([]string{"version"}) {
		t.Fatal("expected version subcommand to be handled")
	}
}
