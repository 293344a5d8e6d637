package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ciphernom/voirc/internal/identity"
)

// Version is the server's reported version string.
const Version = "0.1.0"

// RunCLI handles subcommand execution before flag parsing, the same
// dispatch shape as teacher server/cli.go's RunCLI — swapped from
// SQLite-admin subcommands (status/channels/settings/backup) to the
// identity-bootstrap subcommands this spec's operator actually needs:
// generating a keypair and mining a proof-of-work nick offline, without
// standing up a full peer. Returns true if a subcommand was handled.
func RunCLI(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("voircd %s\n", Version)
		return true
	case "keygen":
		return cliKeygen(args[1:])
	case "mine":
		return cliMine(args[1:])
	default:
		return false
	}
}

// cliKeygen generates (or loads) an Ed25519 identity at the given path and
// prints its public key.
func cliKeygen(args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: voircd keygen <key-path>")
		os.Exit(1)
	}
	id, err := identity.LoadOrCreate(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pubkey: %s\n", id.PubkeyHex())
	return true
}

// cliMine mines a proof-of-work nick against an existing identity file,
// printing the mined nick and the attempt count.
func cliMine(args []string) bool {
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: voircd mine <key-path> <base-nick> <bits>")
		os.Exit(1)
	}
	id, err := identity.LoadOrCreate(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	bits, err := strconv.Atoi(args[2])
	if err != nil || identity.CheckBits(bits) != nil {
		fmt.Fprintf(os.Stderr, "error: bits must be an integer in [0, %d]\n", identity.MaxDifficultyBits)
		os.Exit(1)
	}
	mined := identity.Mine(args[1], id.PubkeyHex(), bits)
	fmt.Printf("nick: %s\nbits: %d\nattempts: %d\n", mined.Nick, mined.Bits, mined.Attempts)
	return true
}
