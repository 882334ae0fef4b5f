// Package migrations embeds the SQL migration files into the binary.
//
// Importing this package for its side effect registers the files with the
// database package, so Migrate works without the SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.RegisterMigrations(migrationsFS, ".")
}
