package migrations

import (
	"context"
	"fmt"

	"token-ledger/internal/storage/postgres"
)

// RunPostgresMigrations applies pending embedded PostgreSQL migrations and
// returns the names of the files it applied. Each file runs in its own transaction together with its
// schema_migrations row.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	return run(ctx, pgDriver{pool: pool}, dir("postgres"))
}

type pgDriver struct {
	pool *postgres.Pool
}

func (d pgDriver) ensureTable(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name        TEXT PRIMARY KEY,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (d pgDriver) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := d.pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (d pgDriver) apply(ctx context.Context, m Migration) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return err
	}
	// A concurrent migrator may have recorded the same file.
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, m.Name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit(ctx)
}
