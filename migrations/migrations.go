// Package migrations embeds the SQL schema migrations so the binary and the
// tests run against the same schema without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
