// Package migrations embeds the goose SQL migrations applied at startup.
package migrations

import "embed"

// Migrations is handed to goose.SetBaseFS by the repository manager.
//
//go:embed *.sql
var Migrations embed.FS
