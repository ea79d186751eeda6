// Package migrations embeds the SQLite and Postgres schemas and applies
// them with goose. Both dialects carry the same numbered versions.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQLite migration files.
//
//go:embed *.sql
var FS embed.FS

// PostgresFS contains the embedded Postgres migration files under postgres/.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// Run applies all pending SQLite migrations to the given database.
func Run(db *sql.DB) error {
	return up(db, FS, "sqlite3", ".")
}

// RunPostgres applies all pending Postgres migrations to the given database.
func RunPostgres(db *sql.DB) error {
	return up(db, PostgresFS, "postgres", "postgres")
}

func up(db *sql.DB, fsys embed.FS, dialect, dir string) error {
	goose.SetBaseFS(fsys)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
