// Package mysql provides the MySQL SQL dialect definition.
package mysql

import (
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/ansi"
)

func init() {
	dialect.Register(MySQL)
}

var mysqlReservedWords = []string{
	"before", "change", "delayed", "div", "dual", "force", "high_priority",
	"ignore", "index", "key", "keys", "kill", "lock", "low_priority", "mod",
	"optimize", "partition", "regexp", "rlike", "show", "straight_join",
	"use", "xor",
}

// MySQL is the MySQL dialect. Backticks quote identifiers, double quotes
// delimit strings (ANSI_QUOTES off), and identifier case is kept as written.
var MySQL = dialect.NewDialect("mysql").
	Tag(core.DialectMySQL).
	Identifiers(core.IdentifierConfig{
		Quote:         '`',
		QuoteEnd:      '`',
		Normalization: core.NormCaseSensitive,
	}).
	HashComments().
	BackslashEscapes().
	DoubleQuotedStrings().
	WithReservedWords(ansi.ReservedWords...).
	WithReservedWords(mysqlReservedWords...).
	Build()
