// Package snowflake provides the Snowflake SQL dialect definition.
package snowflake

import (
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/ansi"
)

func init() {
	dialect.Register(Snowflake)
}

// Snowflake is the Snowflake dialect. Unquoted identifiers fold to uppercase
// and $$ delimits string bodies.
var Snowflake = dialect.NewDialect("snowflake").
	Tag(core.DialectSnowflake).
	Identifiers(core.IdentifierConfig{
		Quote:         '"',
		QuoteEnd:      '"',
		Normalization: core.NormUppercase, // Snowflake normalizes to uppercase
	}).
	DollarQuoting().
	WithReservedWords(ansi.ReservedWords...).
	WithReservedWords("qualify", "ilike", "lateral", "sample", "tablesample", "regexp", "rlike").
	Build()
