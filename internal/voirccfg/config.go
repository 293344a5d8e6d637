// Package voirccfg loads and saves the slice of config.toml that spec.md
// §6 carves back into scope: turn_servers, banned_users, pubkey_hex, and
// pow_required_bits. Everything else config.toml might hold (themes, audio
// device ids, window layout) is a front-end concern and out of scope here.
// Modeled on the teacher's client/internal/config package (Default / Load /
// Save / Path, XDG-style directory, never fail Load), adapted from JSON to
// TOML for spec.md's literal "config.toml" filename.
package voirccfg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// TurnServer is one operator-configured TURN relay entry (spec.md §4.7).
type TurnServer struct {
	URL        string `toml:"url"`
	Username   string `toml:"username"`
	Credential string `toml:"credential"`
}

// Config is the in-scope slice of a peer's config.toml.
type Config struct {
	TurnServers     []TurnServer `toml:"turn_servers"`
	BannedUsers     []string     `toml:"banned_users"` // pubkey-hex or nick entries
	PubkeyHex       string       `toml:"pubkey_hex"`
	PowRequiredBits int          `toml:"pow_required_bits"`
}

// Default returns an empty, zero-valued Config.
func Default() Config {
	return Config{}
}

// Path returns <config dir>/voirc/config.toml (spec.md §6).
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voirc", "config.toml"), nil
}

// Load reads config.toml and returns it. If the file is missing or
// unreadable, the default (zero-valued) Config is returned, never an error
// — matching the teacher's own config.Load contract.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Save persists cfg to config.toml, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("[voirccfg] path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("[voirccfg] mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("[voirccfg] open: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("[voirccfg] encode: %w", err)
	}
	return nil
}

// IsBanned reports whether identifier (a pubkey hex or nick) appears in
// cfg's banned_users list.
func (c Config) IsBanned(identifier string) bool {
	for _, b := range c.BannedUsers {
		if b == identifier {
			return true
		}
	}
	return false
}
