package db

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations
var migrationsFS embed.FS

// DevMode switches getMigrationsFS to read migration files from the
// working tree instead of the embedded copy, so migrations under
// development do not require a rebuild.
var DevMode bool

// getMigrationsFS returns the migrations filesystem rooted at the
// directory that contains the numbered .sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/db/migrations"), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}
