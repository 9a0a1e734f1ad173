package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry that every migration file adds itself to from init().
var Migrations = migrate.NewMigrations()
