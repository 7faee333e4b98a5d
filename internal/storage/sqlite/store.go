// Package sqlite is the primary island tier.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/pixil98/go-isleborn/internal/owner"
	"github.com/pixil98/go-isleborn/internal/storage"
	"github.com/pixil98/go-isleborn/internal/storage/sqlite/migrations"
)

// Store keeps islands in a single SQLite table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Name() string {
	return "sqlite"
}

func (s *Store) Read(ctx context.Context, id owner.ID) (storage.Document, error) {
	var (
		doc       storage.Document
		state     sql.NullString
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, owner_name, level, json_state, updated_at FROM islands WHERE owner = ?`,
		id.String(),
	).Scan(&doc.Owner, &doc.OwnerName, &doc.Level, &state, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Document{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Document{}, classify("reading island", err)
	}

	if state.Valid && state.String != "" {
		doc.State = json.RawMessage(state.String)
	}
	doc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return doc, nil
}

func (s *Store) Write(ctx context.Context, doc storage.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validating document: %w", err)
	}

	var state sql.NullString
	if len(doc.State) > 0 {
		state = sql.NullString{String: string(doc.State), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO islands (owner, owner_name, level, json_state, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner) DO UPDATE SET
		   owner_name = excluded.owner_name,
		   level = excluded.level,
		   json_state = excluded.json_state,
		   updated_at = excluded.updated_at`,
		doc.Owner.String(), doc.OwnerName, doc.Level, state, doc.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return classify("writing island", err)
	}
	return nil
}

// Owners lists every stored owner, ordered by name.
func (s *Store) Owners(ctx context.Context) ([]owner.ID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner FROM islands ORDER BY owner`)
	if err != nil {
		return nil, classify("listing islands", err)
	}
	defer func() { _ = rows.Close() }()

	var out []owner.ID
	for rows.Next() {
		var id owner.ID
		if err := rows.Scan(&id); err != nil {
			return nil, classify("listing islands", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("listing islands", err)
	}
	return out, nil
}

// classify marks the store unreachable unless sqlite answered with an error
// about the statement or its data, or with a lock it did not get in time.
func classify(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED,
			sqlite3lib.SQLITE_MISMATCH, sqlite3lib.SQLITE_TOOBIG:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
}

var _ storage.Tier = (*Store)(nil)
