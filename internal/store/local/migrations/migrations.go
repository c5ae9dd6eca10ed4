// Package migrations embeds the goose migrations for the embedded local
// engine's sqlite database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
