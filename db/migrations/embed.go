// Package migrations bundles the goose SQL migrations into the binary.
package migrations

import "embed"

// FS holds every migration file in this directory.
//
//go:embed *.sql
var FS embed.FS
