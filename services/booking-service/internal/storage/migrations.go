package storage

import "embed"

// Migrations holds the schema applied by db.Migrate on startup when DB_MIGRATE is set.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
