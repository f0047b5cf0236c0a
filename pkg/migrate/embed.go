// Package migrate applies the goose SQL migrations that define the schema.
package migrate

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var bundled embed.FS

// SourceDir is where migrations live relative to the repository root.
const SourceDir = "pkg/migrate/migrations"

// Embedded returns the migrations compiled into the binary, rooted so that
// the .sql files sit at the top level.
func Embedded() fs.FS {
	sub, err := fs.Sub(bundled, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
