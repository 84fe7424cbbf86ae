// Package migrations embeds the SQL schema migrations.
//
// Files are named NNNNNN_name.up.sql / NNNNNN_name.down.sql and applied in order
// by db.Migrate.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
