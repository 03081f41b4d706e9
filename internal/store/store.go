// Package store persists the pointer to the active chat session between
// runs, the way the web chat keeps it in browser local storage.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"CepaChat/internal/config"
)

// ErrUnknownKind is returned by Open for an unsupported store kind
var ErrUnknownKind = errors.New("unknown store kind")

// Pointer holds zero or one session id
type Pointer interface {
	// Get returns the stored id, or "" when none is stored
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Store is a Pointer backed by a resource that must be released
type Store interface {
	Pointer
	Close() error
}

// Open creates the store selected by the configuration
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch kind := cfg.StoreKind(); kind {
	case config.StoreMemory:
		return NewMemory(), nil
	case config.StoreFile:
		path, err := resolvePath(cfg.StorePath, "session.json")
		if err != nil {
			return nil, err
		}
		return NewFile(path, cfg.StoreKey), nil
	case config.StoreSQLite:
		path, err := resolvePath(cfg.StorePath, "cepachat.db")
		if err != nil {
			return nil, err
		}
		return OpenSQLite(path, cfg.StoreKey)
	case config.StoreRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			Key:      cfg.StoreKey,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// resolvePath returns path, or name inside the user config dir when path is empty
func resolvePath(path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	return filepath.Join(dir, "cepachat", name), nil
}
