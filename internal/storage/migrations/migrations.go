// Package migrations applies the embedded SQL schema of the journal stores.
//
// Files are applied in lexical order and recorded in a schema_migrations
// table, so each file runs once per database.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql
var embedded embed.FS

// Migration is one SQL file.
type Migration struct {
	Name string
	SQL  string
}

// driver applies migrations to one kind of database.
type driver interface {
	// ensureTable creates schema_migrations if missing.
	ensureTable(ctx context.Context) error
	// applied returns the names already recorded.
	applied(ctx context.Context) (map[string]bool, error)
	// apply runs m and records its name.
	apply(ctx context.Context, m Migration) error
}

// dir returns the embedded files of one store.
func dir(name string) fs.FS {
	sub, err := fs.Sub(embedded, name)
	if err != nil {
		panic(fmt.Sprintf("migrations: embedded dir %s: %v", name, err))
	}
	return sub
}

// load reads the .sql files at the root of fsys, sorted by name. Blank
// files are skipped.
func load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Name: entry.Name(), SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// run applies every migration of fsys that d has not recorded yet and
// returns the names it applied.
func run(ctx context.Context, d driver, fsys fs.FS) ([]string, error) {
	all, err := load(fsys)
	if err != nil {
		return nil, err
	}
	if err := d.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := d.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	var applied []string
	for _, m := range all {
		if done[m.Name] {
			continue
		}
		if err := d.apply(ctx, m); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// splitStatements splits SQL into statements on semicolons, dropping
// blank lines and -- comments. It does not understand quoting, so
// statements must not carry a semicolon inside a string literal; see
// validateNoSemicolonInStrings.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(filtered, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects SQL with a semicolon inside a
// single-quoted literal.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch {
		case sql[i] == '\'' && i+1 < len(sql) && sql[i+1] == '\'':
			i++ // escaped quote
		case sql[i] == '\'':
			inString = !inString
		case sql[i] == ';' && inString:
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}
