// Package ansi provides the base ANSI SQL dialect.
//
// ANSI is the fallback used when a task carries no dialect-specific rules:
// double-quoted identifiers, lowercase normalization, standard comments.
package ansi

import (
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
)

func init() {
	dialect.Register(ANSI)
}

// ReservedWords are the SQL-92 words that can never be a bare table alias.
// Dialects extend this list.
var ReservedWords = []string{
	"all", "and", "any", "as", "asc", "between", "by", "case", "cast", "check",
	"create", "cross", "current_date", "current_time", "current_timestamp",
	"default", "delete", "desc", "distinct", "drop", "else", "end", "except",
	"exists", "false", "fetch", "for", "foreign", "from", "full", "group",
	"having", "in", "inner", "insert", "intersect", "into", "is", "join",
	"left", "like", "limit", "merge", "natural", "not", "null", "offset", "on",
	"or", "order", "outer", "primary", "references", "right", "select", "set",
	"table", "then", "to", "true", "union", "unique", "update", "using",
	"values", "when", "where", "window", "with",
}

// ANSI is the base ANSI SQL dialect.
var ANSI = dialect.NewDialect("ansi").
	Tag(core.DialectANSI).
	BracketIdentifiers().
	WithReservedWords(ReservedWords...).
	Build()
