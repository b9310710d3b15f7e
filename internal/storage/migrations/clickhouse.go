package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "token-ledger/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database if needed, applies
// pending embedded ClickHouse migrations and returns a connection to that
// database along with the names of the files it applied.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, []string, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName))
	admin.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	applied, err := run(ctx, chDriver{conn: conn}, dir("clickhouse"))
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, applied, nil
}

// chDriver runs statements one by one: the native protocol rejects
// multi-statement Exec, and ClickHouse has no DDL transactions.
type chDriver struct {
	conn *chstore.Conn
}

func (d chDriver) ensureTable(ctx context.Context) error {
	return d.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name        String,
			applied_at  DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(applied_at)
		ORDER BY name
	`)
}

func (d chDriver) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := d.conn.Query(ctx, `SELECT name FROM schema_migrations FINAL`)
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

func (d chDriver) apply(ctx context.Context, m Migration) error {
	if err := validateNoSemicolonInStrings(m.SQL); err != nil {
		return err
	}
	for _, stmt := range splitStatements(m.SQL) {
		if err := d.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return d.conn.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES (?)`, m.Name)
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
