// Package schema embeds the SQL schema files applied by cmd/migrate.
package schema

import "embed"

// PostgresFS embeds all PostgreSQL migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS
