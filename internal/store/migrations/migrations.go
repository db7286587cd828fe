// Package migrations embeds the SQL schemas of the registry and mirror databases.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed registry/*.sql mirror/*.sql
var files embed.FS

// Registry holds the session registry (wpdl.db) migrations.
var Registry = mustSub("registry")

// Mirror holds the per-session history mirror (mirror.db) migrations.
var Mirror = mustSub("mirror")

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
