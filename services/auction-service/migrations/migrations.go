// Package migrations embeds the auction service's goose migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
