// Package migrations holds the embedded SQL schema, applied in
// filename order (001, 002, ...).
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
