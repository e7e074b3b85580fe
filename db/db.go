// Package db defines the persistent state surface of an aimo node.
package db

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/aimo-network/aimo/keys"
)

// Database abstracts the node's persistent key-revocation state so callers
// never depend on the concrete kv implementation.
type Database interface {
	RevokeKey(ctx context.Context, encodedKey string) error
	IsKeyRevoked(ctx context.Context, key *keys.SecretKey) (bool, error)
	RevokedAt(ctx context.Context, key *keys.SecretKey) (int64, error)
	DatabasePath() string
	Close() error
}

// DefaultDataDir returns the OS-appropriate local-data directory for node
// state, ending in aimo/state.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// As we cannot guess a stable location, fall back to the working directory.
		return filepath.Join(".", "aimo", "state")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "aimo", "state")
	case "windows":
		return filepath.Join(home, "AppData", "Local", "aimo", "state")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "aimo", "state")
		}
		return filepath.Join(home, ".local", "share", "aimo", "state")
	}
}
