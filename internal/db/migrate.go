package db

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	Name    string
	Content string
	Hash    string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		h := sha256.Sum256(b)
		out = append(out, migration{Name: e.Name(), Content: string(b), Hash: hex.EncodeToString(h[:])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func ensureMigrationsTable(ctx context.Context, d *DB) error {
	_, err := d.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  name text PRIMARY KEY,
  sha256 text NOT NULL,
  applied_at timestamptz NOT NULL DEFAULT now()
);
`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

// ApplyMigrations applies any embedded migration that has not run yet. A
// previously applied migration whose content changed is an error.
func ApplyMigrations(ctx context.Context, d *DB) error {
	if err := ensureMigrationsTable(ctx, d); err != nil {
		return err
	}
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		var existing string
		err := d.Pool.QueryRow(ctx,
			`SELECT sha256 FROM schema_migrations WHERE name = $1`, m.Name).Scan(&existing)
		if err == nil {
			if existing != m.Hash {
				return fmt.Errorf("migration %s was modified after being applied", m.Name)
			}
			continue
		}
		if _, err := d.Pool.Exec(ctx, m.Content); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		if _, err := d.Pool.Exec(ctx,
			`INSERT INTO schema_migrations(name, sha256) VALUES ($1, $2)`, m.Name, m.Hash); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
	}
	return nil
}
