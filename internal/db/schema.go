// Package db embeds the relational schema applied by cmd/migrate.
package db

import _ "embed"

//go:embed schema.sql
var Schema string
