package command

import (
	"context"
	"fmt"
	"io"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-isleborn/internal/storage"
	"github.com/pixil98/go-isleborn/internal/storage/badger"
	"github.com/pixil98/go-isleborn/internal/storage/sqlite"
)

type StorageDriver string

const (
	StorageDriverSqlite StorageDriver = "sqlite"
	StorageDriverBadger StorageDriver = "badger"
	StorageDriverMemory StorageDriver = "memory"
)

type StorageConfig struct {
	Primary PrimaryConfig `json:"primary"`
	// FallbackDir holds island_<owner>.json files written while the primary
	// store is unreachable.
	FallbackDir string `json:"fallback_dir"`
}

type PrimaryConfig struct {
	Driver StorageDriver `json:"driver"`
	Path   string        `json:"path"`
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()

	switch c.Primary.Driver {
	case "", StorageDriverSqlite:
		if c.Primary.Path == "" {
			el.Add(fmt.Errorf("storage.primary: path is required for sqlite"))
		}
	case StorageDriverBadger, StorageDriverMemory:
	default:
		el.Add(fmt.Errorf("storage.primary: unknown driver %q", c.Primary.Driver))
	}

	if c.FallbackDir == "" {
		el.Add(fmt.Errorf("storage: fallback_dir is required"))
	}

	return el.Err()
}

// BuildTiers opens the primary store and the file fallback. The returned
// closer releases the primary store.
func (c *StorageConfig) BuildTiers(ctx context.Context) (*storage.Tiers, io.Closer, error) {
	primary, closer, err := c.Primary.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	fallback, err := storage.NewFileTier(c.FallbackDir)
	if err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("opening fallback dir: %w", err)
	}

	return storage.NewTiers(primary, fallback), closer, nil
}

func (c *PrimaryConfig) open(ctx context.Context) (storage.Tier, io.Closer, error) {
	switch c.Driver {
	case StorageDriverBadger:
		s, err := badger.Open(c.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening badger store: %w", err)
		}
		return s, s, nil
	case StorageDriverMemory:
		return storage.NewMemory("memory"), nopCloser{}, nil
	default:
		s, err := sqlite.Open(ctx, c.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, s, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
