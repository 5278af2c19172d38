package database

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connection pragmas, applied by the driver on every pooled connection.
// foreign_keys and busy_timeout are per-connection in SQLite, so setting
// them with a one-off Exec after open would leave later pool connections
// without them.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	// Write transactions take the database lock at BEGIN rather than at the
	// first write. A deferred transaction that reads and then writes can hit
	// an unretryable snapshot conflict under concurrency; immediate
	// transactions queue on busy_timeout instead.
	q.Add("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Open opens the SQLite database at path, verifies the connection pragmas
// took effect, and runs any pending migrations.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := verifyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// verifyPragmas fails loudly if the driver did not apply the DSN pragmas.
// The schema relies on foreign key actions and the reconciliation engine on
// the busy timeout, so running without them is worse than not starting.
func verifyPragmas(db *sql.DB) error {
	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		return fmt.Errorf("check foreign_keys: %w", err)
	}
	if fk != 1 {
		return fmt.Errorf("foreign_keys pragma not applied (got %d)", fk)
	}

	var timeout int
	if err := db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout); err != nil {
		return fmt.Errorf("check busy_timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("busy_timeout pragma not applied (got %d)", timeout)
	}

	return nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
