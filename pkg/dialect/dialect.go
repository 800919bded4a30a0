// Package dialect provides SQL dialect configuration for the lineage scanner.
//
// A Dialect describes the lexical rules that matter for finding table
// references: how identifiers are quoted and normalized, which comment and
// string forms exist, and which words can never be a bare alias. Concrete
// dialects are registered from pkg/dialects/*/ packages.
package dialect

import (
	"strings"

	"github.com/leapstack-labs/lineagekit/pkg/core"
)

// Dialect represents a SQL dialect configuration.
type Dialect struct {
	Name        string
	Tag         core.Dialect
	Identifiers core.IdentifierConfig

	// Lexical features
	HashComments        bool // # starts a line comment (MySQL)
	DollarQuoting       bool // $tag$...$tag$ string bodies (PostgreSQL)
	BackslashEscapes    bool // \' escapes inside string literals (MySQL)
	DoubleQuotedStrings bool // "..." is a string literal, not an identifier (MySQL)
	BracketIdentifiers  bool // [name] is a quoted identifier (SQL Server, ANSI tooling)

	reservedWords map[string]struct{}
}

// NormalizeName normalizes an unquoted identifier according to dialect rules.
func (d *Dialect) NormalizeName(name string) string {
	return d.Identifiers.Normalization.Normalize(name)
}

// IsReservedWord returns true if the word needs quoting when used as an identifier.
// Reserved words are never treated as table aliases.
func (d *Dialect) IsReservedWord(word string) bool {
	_, ok := d.reservedWords[strings.ToLower(word)]
	return ok
}

// IsIdentQuote reports whether ch opens a quoted identifier.
func (d *Dialect) IsIdentQuote(ch byte) bool {
	if ch == d.Identifiers.Quote {
		return true
	}
	return d.BracketIdentifiers && ch == '['
}

// ClosingQuote returns the byte that terminates an identifier opened with ch.
func (d *Dialect) ClosingQuote(ch byte) byte {
	if ch == '[' {
		return ']'
	}
	if ch == d.Identifiers.Quote && d.Identifiers.QuoteEnd != 0 {
		return d.Identifiers.QuoteEnd
	}
	return ch
}

// QuoteIdentifier quotes an identifier using the dialect's quote characters.
func (d *Dialect) QuoteIdentifier(name string) string {
	open := string(d.Identifiers.Quote)
	end := string(d.ClosingQuote(d.Identifiers.Quote))
	return open + strings.ReplaceAll(name, end, end+end) + end
}

// QuoteIdentifierIfNeeded quotes an identifier only if it's a reserved word
// or would not survive normalization unchanged.
func (d *Dialect) QuoteIdentifierIfNeeded(name string) string {
	if d.IsReservedWord(name) || d.NormalizeName(name) != name || !isPlainIdent(name) {
		return d.QuoteIdentifier(name)
	}
	return name
}

// FormatTable renders a table reference in this dialect's syntax.
func (d *Dialect) FormatTable(ref core.TableRef) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{ref.Catalog, ref.Schema, ref.Name} {
		if p != "" {
			parts = append(parts, d.QuoteIdentifierIfNeeded(p))
		}
	}
	return strings.Join(parts, ".")
}

func isPlainIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Builder constructs a Dialect.
type Builder struct {
	d *Dialect
}

// NewDialect starts a dialect definition with ANSI defaults:
// double-quoted identifiers, lowercase normalization.
func NewDialect(name string) *Builder {
	return &Builder{d: &Dialect{
		Name: name,
		Identifiers: core.IdentifierConfig{
			Quote:         '"',
			QuoteEnd:      '"',
			Normalization: core.NormLowercase,
		},
		reservedWords: make(map[string]struct{}),
	}}
}

// Tag sets the task dialect tag served by this dialect.
func (b *Builder) Tag(tag core.Dialect) *Builder {
	b.d.Tag = tag
	return b
}

// Identifiers sets identifier quoting and normalization rules.
func (b *Builder) Identifiers(cfg core.IdentifierConfig) *Builder {
	b.d.Identifiers = cfg
	return b
}

// HashComments enables # line comments.
func (b *Builder) HashComments() *Builder {
	b.d.HashComments = true
	return b
}

// DollarQuoting enables $tag$ quoted string bodies.
func (b *Builder) DollarQuoting() *Builder {
	b.d.DollarQuoting = true
	return b
}

// BackslashEscapes enables backslash escapes in string literals.
func (b *Builder) BackslashEscapes() *Builder {
	b.d.BackslashEscapes = true
	return b
}

// DoubleQuotedStrings treats "..." as a string literal.
func (b *Builder) DoubleQuotedStrings() *Builder {
	b.d.DoubleQuotedStrings = true
	return b
}

// BracketIdentifiers enables [name] quoted identifiers.
func (b *Builder) BracketIdentifiers() *Builder {
	b.d.BracketIdentifiers = true
	return b
}

// WithReservedWords adds words that can never be a bare alias.
func (b *Builder) WithReservedWords(words ...string) *Builder {
	for _, w := range words {
		b.d.reservedWords[strings.ToLower(w)] = struct{}{}
	}
	return b
}

// Build returns the finished dialect.
func (b *Builder) Build() *Dialect {
	return b.d
}
