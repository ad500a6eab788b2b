// Package migrations embeds the SQL schema for the population dataset.
package migrations

import "embed"

// FS holds the versioned up and down migrations
//
//go:embed *.sql
var FS embed.FS
