// Package migrations holds the schema of the MySQL client record store as
// goose SQL migrations.
package migrations

import "embed"

// FS contains every migration file, at its root.
//
//go:embed *.sql
var FS embed.FS
