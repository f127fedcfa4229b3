// Package migrations встраивает SQL миграции user-service в бинарник.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
