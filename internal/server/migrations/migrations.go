// Package migrations embeds the goose migrations for the relational engine,
// one directory per dialect. The sqlite variant creates tables with IF NOT
// EXISTS so that a database carrying the legacy pre-multi-tenant shape can
// still be opened; the migrate package then rebuilds the legacy tables.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var Migrations embed.FS
