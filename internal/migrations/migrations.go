// Package migrations bootstraps the module's own Postgres-only bookkeeping
// schema via golang-migrate, grounded directly on the teacher's
// internal/migrations/migrations.go (embedded iofs source, postgres driver,
// the same log-and-continue-on-ErrNoChange shape). The teacher migrates its
// replication schema; this module migrates a single table, quickdb_meta,
// that durably records which (alias, collection) pairs have already had
// their table/indexes ensured — an optimization on top of
// internal/model.Registry's in-process EnsureOnce gate, which only prevents
// redundant work within one process lifetime.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed postgres/*.sql
var MigrationsFS embed.FS

// Run applies every pending migration under postgres/ against databaseURL.
// Safe to call on every process startup: golang-migrate tracks applied
// versions itself and Run treats ErrNoChange as success.
func Run(databaseURL string) error {
	log.Println("quickdb: running bookkeeping migrations from embedded files...")

	sourceInstance, err := iofs.New(MigrationsFS, "postgres")
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	defer func() {
		if cerr := sourceInstance.Close(); cerr != nil {
			log.Printf("warning: error closing migration source instance: %v", cerr)
		}
	}()

	migrateDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection for migration: %w", err)
	}
	defer func() {
		if cerr := migrateDB.Close(); cerr != nil {
			log.Printf("warning: error closing migration db connection: %v", cerr)
		}
	}()

	if err = migrateDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database for migration: %w", err)
	}

	dbDriver, err := postgres.WithInstance(migrateDB, &postgres.Config{
		MigrationsTable: postgres.DefaultMigrationsTable,
	})
	if err != nil {
		return fmt.Errorf("could not create postgres driver instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceInstance, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogAdapter{}

	err = m.Up()
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Printf("warning: error closing migration source: %v", srcErr)
	}
	if dbErr != nil {
		log.Printf("warning: error closing migration database connection: %v", dbErr)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("quickdb: no bookkeeping schema changes to apply")
	} else {
		log.Println("quickdb: bookkeeping migrations completed successfully")
	}
	return nil
}

type migrateLogAdapter struct{}

func (l *migrateLogAdapter) Printf(format string, v ...any) { log.Printf(format, v...) }
func (l *migrateLogAdapter) Verbose() bool                  { return true }

// RecordEnsured upserts a durable record that collection's table and
// indexes have been ensured for alias, so a future process restart can
// skip re-issuing CREATE TABLE/INDEX DDL for a collection it already knows
// about. db is the pq-driven *sql.DB used for bookkeeping only — runtime
// queries against the alias's data go through the pgx-backed adapter pool,
// never through this handle.
func RecordEnsured(db *sql.DB, alias, collection string) error {
	_, err := db.Exec(
		`INSERT INTO quickdb_meta (alias, collection) VALUES ($1, $2)
		 ON CONFLICT (alias, collection) DO UPDATE SET ensured_at = now()`,
		alias, collection,
	)
	return err
}

// IsEnsured reports whether alias/collection was already recorded by a
// prior RecordEnsured call, possibly in an earlier process.
func IsEnsured(db *sql.DB, alias, collection string) (bool, error) {
	var exists bool
	err := db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM quickdb_meta WHERE alias = $1 AND collection = $2)`,
		alias, collection,
	).Scan(&exists)
	return exists, err
}
