// Package migrations holds the session store's ordered, idempotent
// schema migrations, applied through golang-migrate.
//
// Grounded on the gorm.io/gorm + gorm.io/driver/sqlite +
// github.com/golang-migrate/migrate/v4 pairing used for embedded
// relational storage in other_examples/manifests/helixml-helix/go.mod
// and other_examples/manifests/iamprashant-voice-ai/go.mod — the
// teacher (AIWisper) has no relational store to draw on, since it
// persists session metadata as JSON files.
package migrations

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"database/sql"
)

//go:embed *.sql
var files embed.FS

// Apply runs every pending migration against db, in order, each applied
// exactly once. Safe to call on every process start: migrate tracks the
// applied version in its own bookkeeping table and is a no-op once the
// schema is current.
func Apply(db *sql.DB) error {
	source, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("migrations: load embedded sources: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migrations: sqlite3 driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrations: build migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrations: apply: %w", err)
	}
	return nil
}
