// Package remote embeds the schema of the Postgres change sink.
package remote

import "embed"

//go:embed *.sql
var Migrations embed.FS
