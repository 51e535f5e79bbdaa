package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5 database driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/ledger/*.sql migrations/records/*.sql
var migrationFS embed.FS

// Embedded migration sets.
const (
	MigrationsLedger  = "ledger"
	MigrationsRecords = "records"
)

// Migrate applies the embedded migration set named by dir ("ledger" or
// "records") against the given database.
func Migrate(databaseURL, dir string) error {
	src, err := iofs.New(migrationFS, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("open migration source %s: %w", dir, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply %s migrations: %w", dir, err)
	}

	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return fmt.Errorf("migration source close: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration database close: %w", dbErr)
	}
	return nil
}

func pgx5URL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}
