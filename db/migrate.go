package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed migration/sqlite/*.sql migration/postgres/*.sql
var migrationFS embed.FS

// pgMigrationLock serializes migrations between processes starting together.
const pgMigrationLock = 7212001

// MigrationError reports a migration file that could not be applied.
type MigrationError struct {
	Name string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration error: name=%q err=%v", e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// migrationNames lists the migration files for dialect in lexicographical order.
func migrationNames(fsys fs.FS, dialect string) ([]string, error) {
	dir := path.Join("migration", dialect)
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

// migrate sets up migration tracking and executes pending migration files.
//
// Migration files are embedded in the migration/sqlite folder and are executed
// in lexicographical order.
//
// Once a migration is run, its name is stored in the 'migrations' table so it
// is not re-executed. Migrations run in a transaction to prevent partial
// migrations.
func (ps *PostStore) migrate(ctx context.Context) error {
	return ps.migrateFS(ctx, migrationFS)
}

func (ps *PostStore) migrateFS(ctx context.Context, fsys fs.FS) error {
	// Ensure the 'migrations' table exists so we don't duplicate migrations.
	if _, err := ps.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("cannot create migrations table: %w", err)
	}

	names, err := migrationNames(fsys, "sqlite")
	if err != nil {
		return err
	}

	// Loop over all migration files and execute them in order.
	for _, name := range names {
		if err := ps.migrateFile(ctx, fsys, name); err != nil {
			return &MigrationError{Name: name, Err: err}
		}
	}
	return nil
}

// migrateFile runs a single migration file within a transaction. On success,
// the migration file name is saved to the "migrations" table to prevent
// re-running.
func (ps *PostStore) migrateFile(ctx context.Context, fsys fs.FS, name string) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Ensure migration has not already been run.
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM migrations WHERE name = ?`, name).Scan(&n); err != nil {
		return err
	} else if n != 0 {
		return nil // already run migration, skip
	}

	// Read and execute migration file.
	if buf, err := fs.ReadFile(fsys, name); err != nil {
		return err
	} else if _, err := tx.ExecContext(ctx, string(buf)); err != nil {
		return err
	}

	// Insert record into migrations to prevent re-running migration.
	if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (name) VALUES (?)`, name); err != nil {
		return err
	}

	return tx.Commit()
}

// migrate is the PostgreSQL counterpart of PostStore.migrate. Each file runs
// under a transaction-scoped advisory lock.
func (ps *PgPostStore) migrate(ctx context.Context) error {
	return ps.migrateFS(ctx, migrationFS)
}

func (ps *PgPostStore) migrateFS(ctx context.Context, fsys fs.FS) error {
	if _, err := ps.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS migrations (name TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("cannot create migrations table: %w", err)
	}

	names, err := migrationNames(fsys, "postgres")
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := ps.migrateFile(ctx, fsys, name); err != nil {
			return &MigrationError{Name: name, Err: err}
		}
	}
	return nil
}

func (ps *PgPostStore) migrateFile(ctx context.Context, fsys fs.FS, name string) error {
	return pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, pgMigrationLock); err != nil {
			return err
		}

		var n int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM migrations WHERE name = $1`, name).Scan(&n); err != nil {
			return err
		} else if n != 0 {
			return nil
		}

		buf, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, string(buf)); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `INSERT INTO migrations (name) VALUES ($1)`, name)
		return err
	})
}
