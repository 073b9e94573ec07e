package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"bookswap/pkg/logger"
	schema "bookswap/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigration applies every embedded SQL file in lexical order. The files
// only use IF NOT EXISTS, so reapplying them is harmless.
func RunMigration(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	files, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := fs.ReadFile(schema.PostgresFS, "postgres/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		log.Info("Applied Postgres migration", "file", file)
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(schema.PostgresFS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("read embedded postgres migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
