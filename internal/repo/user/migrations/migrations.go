// Package migrations embeds the goose migrations of the user store, one
// directory per SQL dialect.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// FS returns the migrations for the given dialect directory ("sqlite" or "postgres").
func FS(dialect string) (fs.FS, error) {
	sub, err := fs.Sub(files, dialect)
	if err != nil {
		return nil, fmt.Errorf("sub fs %s: %w", dialect, err)
	}

	return sub, nil
}
