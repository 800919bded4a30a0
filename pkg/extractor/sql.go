package extractor

import (
	"log/slog"
	"strings"

	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/ansi"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/postgres"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/snowflake"
	"github.com/leapstack-labs/lineagekit/pkg/lineage"
	"github.com/leapstack-labs/lineagekit/pkg/lineage/mysqlast"
)

// ParseFunc extracts a lineage fact from SQL text.
type ParseFunc func(sql string) *lineage.Fact

// ScannerFor returns a ParseFunc running the tolerant scanner with d.
func ScannerFor(d *dialect.Dialect) ParseFunc {
	return func(sql string) *lineage.Fact {
		return lineage.ParseWithDialect(sql, d)
	}
}

// ParserFor returns the parser the default registry uses for tag. Tags
// without a registered dialect get the ANSI scanner.
func ParserFor(tag core.Dialect) ParseFunc {
	if tag == core.DialectMySQL {
		return mysqlast.Parse
	}
	d, ok := dialect.ForTag(tag)
	if !ok {
		d = ansi.ANSI
	}
	return ScannerFor(d)
}

// SQLExtractor handles tasks tagged with one SQL dialect by parsing their
// SQL text.
type SQLExtractor struct {
	tag    core.Dialect
	parse  ParseFunc
	logger *slog.Logger
}

// NewSQLExtractor creates an extractor for tasks tagged tag. The metadata
// source type is the one the tag runs against.
// If logger is nil, a discard logger is used.
func NewSQLExtractor(tag core.Dialect, parse ParseFunc, logger *slog.Logger) *SQLExtractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLExtractor{
		tag:    tag,
		parse:  parse,
		logger: logger.With("extractor", tag.String()),
	}
}

// NewPostgresExtractor handles PostgreSQL tasks.
func NewPostgresExtractor(logger *slog.Logger) *SQLExtractor {
	return NewSQLExtractor(core.DialectPostgres, ScannerFor(postgres.Postgres), logger)
}

// NewMySQLExtractor handles MySQL tasks with the full MySQL grammar,
// falling back to the tolerant scanner.
func NewMySQLExtractor(logger *slog.Logger) *SQLExtractor {
	return NewSQLExtractor(core.DialectMySQL, mysqlast.Parse, logger)
}

// NewANSIExtractor handles generic SQL tasks.
func NewANSIExtractor(logger *slog.Logger) *SQLExtractor {
	return NewSQLExtractor(core.DialectANSI, ScannerFor(ansi.ANSI), logger)
}

// NewSnowflakeExtractor handles Snowflake tasks.
func NewSnowflakeExtractor(logger *slog.Logger) *SQLExtractor {
	return NewSQLExtractor(core.DialectSnowflake, ScannerFor(snowflake.Snowflake), logger)
}

// CanExtract reports whether the task is tagged with this extractor's dialect.
func (e *SQLExtractor) CanExtract(task *core.Task) bool {
	return task != nil && task.Dialect == e.tag
}

// Extract parses the task's SQL and returns its lineage. Unparseable SQL
// yields empty or partial lineage, not an error.
func (e *SQLExtractor) Extract(task *core.Task) (*core.Metadata, error) {
	name, err := TaskName(task)
	if err != nil {
		return nil, err
	}

	fact := e.parse(task.SQL)
	if fact.Degraded || (fact.IsEmpty() && strings.TrimSpace(task.SQL) != "") {
		e.logger.Debug("lineage degraded",
			"task", name,
			"inputs", len(fact.InTables),
			"outputs", len(fact.OutTables),
		)
	}

	return &core.Metadata{
		Name:       name,
		SourceType: e.tag.SourceType(),
		SourceName: task.ConnectionID,
		Inputs:     fact.InTables,
		Outputs:    fact.OutTables,
	}, nil
}
