package migrations

import "embed"

// FS contains embedded SQLite migrations for island storage.
//
//go:embed *.sql
var FS embed.FS
