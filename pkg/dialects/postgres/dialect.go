// Package postgres provides the PostgreSQL SQL dialect definition.
// This package is pure Go with no database driver dependencies.
package postgres

import (
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/ansi"
)

func init() {
	dialect.Register(Postgres)
}

// postgresReservedWords contains common PostgreSQL reserved words.
// This is a manually maintained list of frequently problematic identifiers.
// For a complete list, use pg_get_keywords() at runtime.
var postgresReservedWords = []string{
	"user", "index", "array", "asymmetric", "authorization", "binary", "both",
	"collate", "column", "constraint", "current_catalog", "current_role",
	"current_schema", "current_user", "deferrable", "do", "freeze", "grant",
	"ilike", "initially", "isnull", "lateral", "leading", "localtime",
	"localtimestamp", "notnull", "only", "overlaps", "placing", "returning",
	"session_user", "similar", "some", "symmetric", "tablesample", "trailing",
	"variadic", "verbose",
}

// Postgres is the PostgreSQL dialect:
// - double-quoted identifiers, unquoted names fold to lowercase
// - $tag$ dollar-quoted bodies
var Postgres = dialect.NewDialect("postgres").
	Tag(core.DialectPostgres).
	Identifiers(core.IdentifierConfig{
		Quote:         '"',
		QuoteEnd:      '"',
		Normalization: core.NormLowercase, // Postgres normalizes unquoted to lowercase
	}).
	DollarQuoting().
	WithReservedWords(ansi.ReservedWords...).
	WithReservedWords(postgresReservedWords...).
	Build()
