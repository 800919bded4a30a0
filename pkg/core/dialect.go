package core

import (
	"fmt"
	"strings"
)

// Dialect tags a task with the SQL variant its query is written in.
// Tasks are tagged explicitly when they are built; extractors never
// inspect task types to guess the dialect.
type Dialect string

const (
	// DialectNone marks a task that carries no SQL.
	DialectNone Dialect = ""
	// DialectANSI marks generic SQL with ANSI quoting rules.
	DialectANSI Dialect = "ansi"
	// DialectPostgres marks PostgreSQL-flavored SQL.
	DialectPostgres Dialect = "postgres"
	// DialectMySQL marks MySQL-flavored SQL.
	DialectMySQL Dialect = "mysql"
	// DialectSnowflake marks Snowflake-flavored SQL.
	DialectSnowflake Dialect = "snowflake"
)

var dialectAliases = map[string]Dialect{
	"":           DialectNone,
	"none":       DialectNone,
	"ansi":       DialectANSI,
	"sql":        DialectANSI,
	"postgres":   DialectPostgres,
	"postgresql": DialectPostgres,
	"pg":         DialectPostgres,
	"mysql":      DialectMySQL,
	"mariadb":    DialectMySQL,
	"snowflake":  DialectSnowflake,
}

// ParseDialect converts a user-supplied dialect name to a Dialect tag.
// Matching is case-insensitive and accepts common aliases.
func ParseDialect(s string) (Dialect, error) {
	if d, ok := dialectAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return DialectNone, fmt.Errorf("unknown dialect %q", s)
}

// String returns the dialect name.
func (d Dialect) String() string {
	if d == DialectNone {
		return "none"
	}
	return string(d)
}

// SourceType returns the source type that SQL in this dialect runs against.
func (d Dialect) SourceType() SourceType {
	switch d {
	case DialectPostgres:
		return SourcePostgreSQL
	case DialectMySQL:
		return SourceMySQL
	case DialectANSI:
		return SourceANSI
	case DialectSnowflake:
		return SourceSnowflake
	default:
		return SourceNone
	}
}

// NormalizationStrategy defines how unquoted identifiers are normalized.
type NormalizationStrategy int

const (
	// NormLowercase normalizes unquoted identifiers to lowercase (default SQL behavior).
	NormLowercase NormalizationStrategy = iota
	// NormUppercase normalizes unquoted identifiers to uppercase (Snowflake, Oracle).
	NormUppercase
	// NormCaseSensitive preserves identifier case exactly (MySQL, ClickHouse).
	NormCaseSensitive
)

// IdentifierConfig defines how identifiers are quoted and normalized.
type IdentifierConfig struct {
	Quote         byte                  // Quote character: ", `, [
	QuoteEnd      byte                  // End quote character (usually same as Quote, ] for [)
	Normalization NormalizationStrategy // How to normalize unquoted identifiers
}

// Normalize applies the strategy to an unquoted identifier.
func (s NormalizationStrategy) Normalize(ident string) string {
	switch s {
	case NormLowercase:
		return strings.ToLower(ident)
	case NormUppercase:
		return strings.ToUpper(ident)
	default:
		return ident
	}
}

// UnmarshalText accepts every name ParseDialect does, so task files and
// API payloads may say "pg" or "PostgreSQL".
func (d *Dialect) UnmarshalText(text []byte) error {
	parsed, err := ParseDialect(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
