// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

// Dir is the directory inside FS holding the migration files.
const Dir = "sql"

//go:embed sql/*.sql
var FS embed.FS
