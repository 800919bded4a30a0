// Package lineage extracts table-level lineage from SQL text.
//
// The scanner is tolerant rather than grammar-validating. It tokenizes the
// input, splits it into statements at top-level semicolons and looks for
// the keywords that open a read context (FROM, JOIN, USING) or a write
// context (INSERT INTO, UPDATE, MERGE INTO, CREATE TABLE, DELETE FROM,
// COPY). Tokens it does not understand are skipped. Malformed input yields
// an empty or partial Fact, never an error or a panic.
//
// # Usage
//
//	fact := lineage.ParseWithDialect(
//	    "INSERT INTO users SELECT id, name FROM staging_users",
//	    postgres.Postgres,
//	)
//	// fact.InTables  = [staging_users]
//	// fact.OutTables = [users]
//
// # Naming
//
// Unquoted identifier parts are normalized with the dialect rule
// (lowercase for Postgres, uppercase for Snowflake, unchanged for MySQL).
// Quoted parts are kept exactly as written. Names with more than three
// parts keep the last three as catalog, schema and table.
//
// # CTEs
//
// Names introduced by WITH [RECURSIVE] name [(cols)] AS (...) are local to
// their statement. Unqualified references to them are not reported; the
// tables read inside a CTE body are.
package lineage

import (
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/ansi"
)

// Fact is the table lineage of a SQL text.
type Fact struct {
	InTables  []core.TableRef `json:"in_tables"`
	OutTables []core.TableRef `json:"out_tables"`

	// Degraded is set when part of the input could not be understood.
	// Tables found before that point are still reported.
	Degraded bool `json:"degraded,omitempty"`
}

// IsEmpty reports whether the fact carries no tables at all.
func (f *Fact) IsEmpty() bool {
	return len(f.InTables) == 0 && len(f.OutTables) == 0
}

// Parse extracts lineage from sql using the ANSI dialect.
func Parse(sql string) *Fact {
	return ParseWithDialect(sql, ansi.ANSI)
}

// ParseWithDialect extracts lineage from sql using the lexical and naming
// rules of d. A nil dialect means ANSI.
//
// It is safe for concurrent use.
func ParseWithDialect(sql string, d *dialect.Dialect) *Fact {
	if d == nil {
		d = ansi.ANSI
	}

	ins, outs := newTableSet(), newTableSet()
	fact := &Fact{}

	for _, stmt := range splitStatements(Tokenize(sql, d)) {
		s := newScanner(d, stmt)
		s.run()
		for _, ref := range s.ins.list() {
			ins.add(ref)
		}
		for _, ref := range s.outs.list() {
			outs.add(ref)
		}
		if s.degraded {
			fact.Degraded = true
		}
	}

	fact.InTables = ins.list()
	fact.OutTables = outs.list()
	return fact
}

// splitStatements splits a token stream at semicolons outside parentheses.
// The EOF token and empty statements are dropped.
func splitStatements(tokens []Token) [][]Token {
	var (
		stmts [][]Token
		start int
		depth int
	)
	for i, tok := range tokens {
		switch tok.Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			if depth > 0 {
				depth--
			}
		case TOKEN_SEMICOLON, TOKEN_EOF:
			if tok.Type == TOKEN_SEMICOLON && depth > 0 {
				continue
			}
			if i > start {
				stmts = append(stmts, tokens[start:i])
			}
			start = i + 1
		}
	}
	return stmts
}

// tableSet is an insertion-ordered set of table references.
type tableSet struct {
	seen  map[core.TableRef]struct{}
	order []core.TableRef
}

func newTableSet() *tableSet {
	return &tableSet{seen: make(map[core.TableRef]struct{})}
}

func (s *tableSet) add(ref core.TableRef) {
	if _, ok := s.seen[ref]; ok {
		return
	}
	s.seen[ref] = struct{}{}
	s.order = append(s.order, ref)
}

func (s *tableSet) remove(ref core.TableRef) {
	if _, ok := s.seen[ref]; !ok {
		return
	}
	delete(s.seen, ref)
	for i, r := range s.order {
		if r == ref {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// list returns a copy of the set in insertion order, never nil.
func (s *tableSet) list() []core.TableRef {
	out := make([]core.TableRef, len(s.order))
	copy(out, s.order)
	return out
}
