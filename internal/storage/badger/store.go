// Package badger keeps islands in an embedded Badger database.
package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/pixil98/go-isleborn/internal/owner"
	"github.com/pixil98/go-isleborn/internal/storage"
)

const keyPrefix = "island:"

type Store struct {
	db *badger.DB
}

// Open opens the database directory at path. An empty path keeps everything
// in memory.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Clean(path))
		opts = opts.WithValueLogFileSize(1 << 20)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Name() string {
	return "badger"
}

func islandKey(id owner.ID) []byte {
	return []byte(keyPrefix + id.String())
}

func (s *Store) Read(ctx context.Context, id owner.ID) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}

	var out storage.Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(islandKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			doc, err := storage.Decode(v)
			out = doc
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.Document{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Document{}, classify("reading island", err)
	}
	return out, nil
}

func (s *Store) Write(ctx context.Context, doc storage.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validating document: %w", err)
	}

	data, err := storage.Encode(doc, false)
	if err != nil {
		return fmt.Errorf("marshalling json: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(islandKey(doc.Owner), data)
	})
	if err != nil {
		return classify("writing island", err)
	}
	return nil
}

func (s *Store) Discard(_ context.Context, id owner.ID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(islandKey(id)); err != nil {
			return err
		}
		return txn.Delete(islandKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return classify("discarding island", err)
	}
	return nil
}

// Owners lists every stored owner in key order.
func (s *Store) Owners(_ context.Context) ([]owner.ID, error) {
	var out []owner.ID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, owner.ID(strings.TrimPrefix(string(it.Item().Key()), keyPrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, classify("listing islands", err)
	}
	return out, nil
}

func classify(op string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) || errors.Is(err, badger.ErrBlockedWrites) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var (
	_ storage.Tier      = (*Store)(nil)
	_ storage.Discarder = (*Store)(nil)
	_ storage.Lister    = (*Store)(nil)
)
