package lineage

import (
	"strings"

	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
)

// Words before INSERT/UPDATE/DELETE that mean the keyword is not a DML
// statement: MERGE actions, trigger events, FK actions, row locks, upserts.
var (
	dmlGuards    = []string{"then", "before", "after", "or", "of", "on"}
	updateGuards = []string{"then", "before", "after", "or", "of", "on", "for", "do", "key", "no"}
)

// scanner finds table references in the tokens of one statement.
type scanner struct {
	d     *dialect.Dialect
	toks  []Token
	match []int // index of the closing ')' for each '(' position, -1 elsewhere

	ctes          []map[string]struct{} // one scope per query range, innermost last
	aliases       map[string]core.TableRef
	deleteTargets []core.TableRef

	ins, outs *tableSet
	degraded  bool
}

func newScanner(d *dialect.Dialect, toks []Token) *scanner {
	s := &scanner{
		d:       d,
		aliases: make(map[string]core.TableRef),
		ins:     newTableSet(),
		outs:    newTableSet(),
	}

	// Anything after an unterminated string, quote or template is lost.
	for i, tok := range toks {
		if tok.Type == TOKEN_ILLEGAL {
			toks = toks[:i]
			s.degraded = true
			break
		}
	}
	s.toks = toks

	s.match = make([]int, len(toks))
	var stack []int
	for i, tok := range toks {
		s.match[i] = -1
		switch tok.Type {
		case TOKEN_LPAREN:
			stack = append(stack, i)
		case TOKEN_RPAREN:
			if len(stack) == 0 {
				s.degraded = true
				continue
			}
			s.match[stack[len(stack)-1]] = i
			stack = stack[:len(stack)-1]
		}
	}
	for _, open := range stack {
		s.match[open] = len(toks)
		s.degraded = true
	}
	return s
}

// run scans the whole statement. Tables recorded before an internal
// failure are kept.
func (s *scanner) run() {
	defer func() {
		if r := recover(); r != nil {
			s.degraded = true
		}
	}()
	s.scanRange(0, len(s.toks))
	s.resolveDeleteTargets()
}

// ---------- Token Helpers ----------

// at returns the token at i, or EOF when i is outside [0, hi).
func (s *scanner) at(i, hi int) Token {
	if i < 0 || i >= hi || i >= len(s.toks) {
		return Token{Type: TOKEN_EOF}
	}
	return s.toks[i]
}

// closing returns the index of the ')' matching the '(' at i, capped at hi.
func (s *scanner) closing(i, hi int) int {
	if m := s.match[i]; m >= 0 && m < hi {
		return m
	}
	return hi
}

// isWord reports whether tok is an unquoted word equal to one of words.
func isWord(tok Token, words ...string) bool {
	if tok.Quoted || (tok.Type != TOKEN_IDENT && !tok.Type.IsKeyword()) {
		return false
	}
	for _, w := range words {
		if strings.EqualFold(tok.Literal, w) {
			return true
		}
	}
	return false
}

func (s *scanner) prevIs(lo, i int, words ...string) bool {
	return i > lo && isWord(s.toks[i-1], words...)
}

func (s *scanner) skipWords(i, hi int, words ...string) int {
	for isWord(s.at(i, hi), words...) {
		i++
	}
	return i
}

// isQueryStart reports whether the token at i opens a query rather than
// an expression, a column list or function arguments.
func (s *scanner) isQueryStart(i, hi int) bool {
	switch s.at(i, hi).Type {
	case TOKEN_SELECT, TOKEN_WITH, TOKEN_VALUES, TOKEN_TABLE,
		TOKEN_INSERT, TOKEN_UPDATE, TOKEN_DELETE, TOKEN_MERGE, TOKEN_LPAREN:
		return true
	}
	return false
}

// ---------- Scanning ----------

// scanRange scans [lo, hi) in query mode. CTEs defined by a WITH inside
// the range are visible only within it.
func (s *scanner) scanRange(lo, hi int) {
	s.ctes = append(s.ctes, nil)
	defer func() { s.ctes = s.ctes[:len(s.ctes)-1] }()

	for i := lo; i < hi; {
		i = s.scanToken(lo, i, hi)
	}
}

// scanExpr scans [lo, hi) in expression mode: FROM is not a table context
// here (EXTRACT(YEAR FROM d), SUBSTRING(s FROM 2)), but nested queries are.
func (s *scanner) scanExpr(lo, hi int) {
	for i := lo; i < hi; {
		if s.toks[i].Type == TOKEN_LPAREN {
			i = s.scanParen(i, hi)
			continue
		}
		i++
	}
}

// scanParen scans the parenthesized group at i and returns the index after it.
func (s *scanner) scanParen(i, hi int) int {
	end := s.closing(i, hi)
	if s.isQueryStart(i+1, end) {
		s.scanRange(i+1, end)
	} else {
		s.scanExpr(i+1, end)
	}
	return end + 1
}

// scanToken handles the token at i and returns the index to continue from.
// The returned index is always greater than i.
func (s *scanner) scanToken(lo, i, hi int) int {
	tok := s.toks[i]
	next := i + 1

	switch tok.Type {
	case TOKEN_LPAREN:
		return s.scanParen(i, hi)
	case TOKEN_FROM:
		if s.prevIs(lo, i, "distinct") { // IS [NOT] DISTINCT FROM
			return next
		}
		return s.readFromList(next, hi)
	case TOKEN_JOIN, TOKEN_STRAIGHT_JOIN:
		return s.readFromItem(next, hi)
	case TOKEN_USING:
		return s.readUsing(next, hi)
	case TOKEN_WITH:
		return s.readWith(next, hi)
	case TOKEN_INSERT:
		if s.prevIs(lo, i, dmlGuards...) {
			return next
		}
		return s.readInsert(next, hi)
	case TOKEN_UPDATE:
		if s.prevIs(lo, i, updateGuards...) {
			return next
		}
		return s.readUpdate(next, hi)
	case TOKEN_DELETE:
		if s.prevIs(lo, i, dmlGuards...) {
			return next
		}
		return s.readDelete(next, hi)
	case TOKEN_MERGE:
		return s.readMerge(next, hi)
	case TOKEN_CREATE:
		return s.readCreate(next, hi)
	case TOKEN_REPLACE:
		return s.readReplace(next, hi)
	case TOKEN_TRUNCATE:
		return s.readTruncate(next, hi)
	case TOKEN_INTO:
		return s.readInto(next, hi)
	case TOKEN_COPY:
		return s.readCopy(next, hi)
	case TOKEN_TABLE:
		if i == lo { // TABLE name, shorthand for SELECT * FROM name
			return s.readFromItem(next, hi)
		}
	}
	return next
}

// ---------- Read contexts ----------

// readFromList reads a comma-separated FROM list.
func (s *scanner) readFromList(i, hi int) int {
	i = s.readFromItem(i, hi)
	for s.at(i, hi).Type == TOKEN_COMMA {
		i = s.readFromItem(i+1, hi)
	}
	return i
}

// readFromItem reads one FROM/JOIN source with its alias: a table,
// a subquery, a parenthesized join or a table function.
func (s *scanner) readFromItem(i, hi int) int {
	for t := s.at(i, hi).Type; t == TOKEN_ONLY || t == TOKEN_LATERAL; t = s.at(i, hi).Type {
		i++
	}

	switch s.at(i, hi).Type {
	case TOKEN_EOF:
		s.degraded = true
		return i
	case TOKEN_LPAREN:
		end := s.closing(i, hi)
		if s.isQueryStart(i+1, end) {
			s.scanRange(i+1, end)
		} else {
			// FROM (a JOIN b ON ...)
			j := s.readFromList(i+1, end)
			s.scanRange(j, end)
		}
		i, _ = s.readAlias(end+1, hi)
		return i
	case TOKEN_TABLE: // Snowflake TABLE(FLATTEN(...))
		if s.at(i+1, hi).Type == TOKEN_LPAREN {
			i, _ = s.readAlias(s.scanParen(i+1, hi), hi)
			return i
		}
	case TOKEN_STRING: // FROM 'file.csv'
		i, _ = s.readAlias(i+1, hi)
		return i
	}

	ref, j, ok := s.readName(i, hi)
	if !ok {
		if j == i {
			s.degraded = true
		}
		j, _ = s.readAlias(j, hi)
		return j
	}
	if s.at(j, hi).Type == TOKEN_LPAREN {
		// generate_series(1, 10), unnest(arr)
		j, _ = s.readAlias(s.scanParen(j, hi), hi)
		return j
	}

	s.addInput(ref)
	j, alias := s.readAlias(j, hi)
	if alias != "" {
		s.aliases[alias] = ref
	}
	return j
}

// readUsing handles USING: a MERGE or DELETE source, or a JOIN column list.
func (s *scanner) readUsing(i, hi int) int {
	if s.at(i, hi).Type == TOKEN_LPAREN {
		end := s.closing(i, hi)
		if !s.isQueryStart(i+1, end) {
			s.scanExpr(i+1, end)
			return end + 1
		}
	}
	return s.readFromItem(i, hi)
}

// readWith registers the CTE names of a WITH clause and scans their bodies.
// WITH in any other position (WITH TIME ZONE, WITH (fillfactor=70)) is ignored.
func (s *scanner) readWith(i, hi int) int {
	if s.at(i, hi).Type == TOKEN_RECURSIVE {
		i++
	}
	for {
		name, body, ok := s.cteHeader(i, hi)
		if !ok {
			return i
		}
		// Registered before the body is scanned so recursive references resolve.
		s.defineCTE(name)
		end := s.closing(body, hi)
		s.scanRange(body+1, end)

		i = end + 1
		if s.at(i, hi).Type != TOKEN_COMMA {
			return i
		}
		i++
	}
}

// cteHeader matches name [(cols)] AS [NOT] [MATERIALIZED] ( and returns the
// normalized name and the index of the body's opening parenthesis.
func (s *scanner) cteHeader(i, hi int) (string, int, bool) {
	tok := s.at(i, hi)
	if tok.Type != TOKEN_IDENT {
		return "", i, false
	}
	name := s.normalizePart(tok)
	i++

	if s.at(i, hi).Type == TOKEN_LPAREN {
		i = s.closing(i, hi) + 1
	}
	if s.at(i, hi).Type != TOKEN_AS {
		return "", i, false
	}
	i++
	if s.at(i, hi).Type == TOKEN_NOT {
		i++
	}
	if s.at(i, hi).Type == TOKEN_MATERIALIZED {
		i++
	}
	if s.at(i, hi).Type != TOKEN_LPAREN {
		return "", i, false
	}
	return name, i, true
}

// ---------- Write contexts ----------

// readInsert handles INSERT [modifiers] INTO|OVERWRITE [TABLE] target.
func (s *scanner) readInsert(i, hi int) int {
	i = s.skipWords(i, hi, "ignore", "low_priority", "delayed", "high_priority")
	if s.at(i, hi).Type == TOKEN_OR { // SQLite INSERT OR REPLACE|IGNORE
		i += 2
	}
	switch s.at(i, hi).Type {
	case TOKEN_INTO, TOKEN_OVERWRITE:
		i++
		if s.at(i, hi).Type == TOKEN_TABLE {
			i++
		}
	}
	return s.readTarget(i, hi)
}

// readUpdate handles UPDATE [ONLY] target [, source ...].
func (s *scanner) readUpdate(i, hi int) int {
	i = s.skipWords(i, hi, "low_priority", "ignore")
	if s.at(i, hi).Type == TOKEN_ONLY {
		i++
	}
	i = s.readTarget(i, hi)
	for s.at(i, hi).Type == TOKEN_COMMA {
		i = s.readFromItem(i+1, hi)
	}
	return i
}

// readDelete handles DELETE FROM target and the multi-table
// DELETE t1, t2 FROM ... form, whose targets may be aliases.
func (s *scanner) readDelete(i, hi int) int {
	i = s.skipWords(i, hi, "low_priority", "quick", "ignore")
	if s.at(i, hi).Type == TOKEN_FROM {
		i++
		if s.at(i, hi).Type == TOKEN_ONLY {
			i++
		}
		i = s.readTarget(i, hi)
		for s.at(i, hi).Type == TOKEN_COMMA {
			i = s.readTarget(i+1, hi)
		}
		return i
	}

	for {
		ref, j, ok := s.readName(i, hi)
		if !ok {
			if j == i {
				s.degraded = true
			}
			return j
		}
		s.deleteTargets = append(s.deleteTargets, ref)
		i = j
		if s.at(i, hi).Type != TOKEN_COMMA {
			return i
		}
		i++
	}
}

// resolveDeleteTargets maps multi-table DELETE targets through the FROM
// aliases and records them as outputs only.
func (s *scanner) resolveDeleteTargets() {
	for _, ref := range s.deleteTargets {
		if ref.Catalog == "" && ref.Schema == "" {
			if aliased, ok := s.aliases[ref.Name]; ok {
				ref = aliased
			}
		}
		s.ins.remove(ref)
		s.addOutput(ref)
	}
}

// readMerge handles MERGE [INTO] target.
func (s *scanner) readMerge(i, hi int) int {
	if s.at(i, hi).Type == TOKEN_INTO {
		i++
	}
	return s.readTarget(i, hi)
}

// readCreate handles CREATE [OR REPLACE] [modifiers] TABLE|VIEW|MATERIALIZED VIEW
// [IF NOT EXISTS] target. Other CREATE statements carry no table lineage.
func (s *scanner) readCreate(i, hi int) int {
	if s.at(i, hi).Type == TOKEN_OR && s.at(i+1, hi).Type == TOKEN_REPLACE {
		i += 2
	}
	i = s.skipWords(i, hi,
		"global", "local", "temp", "temporary", "transient", "unlogged",
		"external", "volatile", "secure", "recursive")

	switch s.at(i, hi).Type {
	case TOKEN_TABLE, TOKEN_VIEW:
		i++
	case TOKEN_MATERIALIZED:
		if s.at(i+1, hi).Type != TOKEN_VIEW {
			return i
		}
		i += 2
	default:
		return i
	}

	if s.at(i, hi).Type == TOKEN_IF && s.at(i+1, hi).Type == TOKEN_NOT && s.at(i+2, hi).Type == TOKEN_EXISTS {
		i += 3
	}
	return s.readTarget(i, hi)
}

// readReplace handles MySQL REPLACE INTO target. The replace() function
// and CREATE OR REPLACE never reach a target.
func (s *scanner) readReplace(i, hi int) int {
	if s.at(i, hi).Type != TOKEN_INTO {
		return i
	}
	return s.readTarget(i+1, hi)
}

// readTruncate handles TRUNCATE [TABLE] [ONLY] t [, ...].
func (s *scanner) readTruncate(i, hi int) int {
	if s.at(i, hi).Type == TOKEN_LPAREN { // MySQL TRUNCATE(x, d)
		return i
	}
	if s.at(i, hi).Type == TOKEN_TABLE {
		i++
	}
	if s.at(i, hi).Type == TOKEN_ONLY {
		i++
	}
	i = s.readTarget(i, hi)
	for s.at(i, hi).Type == TOKEN_COMMA {
		i = s.readTarget(i+1, hi)
	}
	return i
}

// readInto handles SELECT ... INTO [TEMP] [TABLE] target.
func (s *scanner) readInto(i, hi int) int {
	i = s.skipWords(i, hi, "temp", "temporary", "unlogged")
	if s.at(i, hi).Type == TOKEN_TABLE {
		i++
	}
	if isWord(s.at(i, hi), "outfile", "dumpfile") {
		return i + 1
	}
	return s.readTarget(i, hi)
}

// readCopy handles COPY t FROM (a load, t is written), COPY t TO (an
// export, t is read) and COPY INTO t (a load). The file, STDIN or STDOUT
// operand after FROM/TO is skipped.
func (s *scanner) readCopy(i, hi int) int {
	switch s.at(i, hi).Type {
	case TOKEN_INTO:
		return s.readTarget(i+1, hi)
	case TOKEN_LPAREN: // COPY (query) TO ...
		return i
	}

	ref, j, ok := s.readName(i, hi)
	if !ok {
		if j == i {
			s.degraded = true
		}
		return j
	}
	if s.at(j, hi).Type == TOKEN_LPAREN {
		j = s.closing(j, hi) + 1
	}

	switch s.at(j, hi).Type {
	case TOKEN_FROM:
		s.addOutput(ref)
	case TOKEN_TO:
		s.addInput(ref)
	default:
		return j
	}
	j++
	if isWord(s.at(j, hi), "program") {
		j++
	}
	return j + 1
}

// readTarget reads a write target followed by an optional column list
// and alias. A parenthesized query after the target is left for the caller.
func (s *scanner) readTarget(i, hi int) int {
	ref, j, ok := s.readName(i, hi)
	if !ok {
		if j == i {
			s.degraded = true
		}
		return j
	}
	s.addOutput(ref)

	if s.at(j, hi).Type == TOKEN_LPAREN {
		end := s.closing(j, hi)
		if s.isQueryStart(j+1, end) {
			return j
		}
		s.scanExpr(j+1, end)
		return end + 1
	}
	j, _ = s.readAlias(j, hi)
	return j
}

// ---------- Names ----------

// readName reads a dot-qualified name starting at i. ok is false when the
// name is not a concrete table (a template placeholder or bind parameter);
// the tokens are consumed either way. When nothing is consumed the
// returned index equals i.
func (s *scanner) readName(i, hi int) (core.TableRef, int, bool) {
	if !s.startsName(s.at(i, hi)) {
		return core.TableRef{}, i, false
	}

	var parts []string
	concrete := true
	for {
		tok := s.toks[i]
		if tok.Type == TOKEN_TEMPLATE || tok.Type == TOKEN_PARAM {
			concrete = false
		}
		parts = append(parts, s.normalizePart(tok))
		i++

		if s.at(i, hi).Type != TOKEN_DOT {
			break
		}
		next := s.at(i+1, hi)
		if next.Type == TOKEN_STAR { // DELETE t.* FROM ...
			i += 2
			break
		}
		if !isPartToken(next) {
			break
		}
		i++
	}

	if !concrete {
		return core.TableRef{}, i, false
	}
	return refFromParts(parts), i, true
}

// startsName reports whether tok can begin a table name. Unquoted words
// the dialect reserves cannot; other keywords (view, key, copy) can.
func (s *scanner) startsName(tok Token) bool {
	switch tok.Type {
	case TOKEN_IDENT:
		return tok.Quoted || !s.d.IsReservedWord(tok.Literal)
	case TOKEN_TEMPLATE, TOKEN_PARAM:
		return true
	}
	return tok.Type.IsKeyword() && !s.d.IsReservedWord(tok.Literal)
}

// isPartToken reports whether tok can follow a dot in a qualified name.
func isPartToken(tok Token) bool {
	switch tok.Type {
	case TOKEN_IDENT, TOKEN_TEMPLATE, TOKEN_PARAM:
		return true
	}
	return tok.Type.IsKeyword()
}

// readAlias skips an optional alias (AS x, or a bare non-reserved word)
// and the column alias list that may follow it. It returns the normalized
// alias, or "" when there was none.
func (s *scanner) readAlias(i, hi int) (int, string) {
	var alias string
	tok := s.at(i, hi)
	switch {
	case tok.Type == TOKEN_AS:
		i++
		if next := s.at(i, hi); next.Type == TOKEN_IDENT || next.Type == TOKEN_STRING {
			alias = s.normalizePart(next)
			i++
		}
	case tok.Type == TOKEN_IDENT && (tok.Quoted || !s.d.IsReservedWord(tok.Literal)):
		alias = s.normalizePart(tok)
		i++
	}

	if alias != "" && s.at(i, hi).Type == TOKEN_LPAREN {
		end := s.closing(i, hi)
		if !s.isQueryStart(i+1, end) {
			i = end + 1
		}
	}
	return i, alias
}

// normalizePart applies the dialect's identifier rule to an unquoted part.
func (s *scanner) normalizePart(tok Token) string {
	if tok.Quoted || (tok.Type != TOKEN_IDENT && !tok.Type.IsKeyword()) {
		return tok.Literal
	}
	return s.d.NormalizeName(tok.Literal)
}

// refFromParts maps the last three name parts to catalog, schema and table.
func refFromParts(parts []string) core.TableRef {
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	switch len(parts) {
	case 3:
		return core.TableRef{Catalog: parts[0], Schema: parts[1], Name: parts[2]}
	case 2:
		return core.TableRef{Schema: parts[0], Name: parts[1]}
	default:
		return core.TableRef{Name: parts[0]}
	}
}

// defineCTE adds name to the innermost scope.
func (s *scanner) defineCTE(name string) {
	top := len(s.ctes) - 1
	if s.ctes[top] == nil {
		s.ctes[top] = make(map[string]struct{})
	}
	s.ctes[top][name] = struct{}{}
}

// isCTE reports whether an unqualified ref names a CTE of the current
// range or an enclosing one.
func (s *scanner) isCTE(ref core.TableRef) bool {
	if ref.Catalog != "" || ref.Schema != "" {
		return false
	}
	for _, scope := range s.ctes {
		if _, ok := scope[ref.Name]; ok {
			return true
		}
	}
	return false
}

func (s *scanner) addInput(ref core.TableRef) {
	if ref.IsZero() || s.isCTE(ref) {
		return
	}
	s.ins.add(ref)
}

func (s *scanner) addOutput(ref core.TableRef) {
	if ref.IsZero() || s.isCTE(ref) {
		return
	}
	s.outs.add(ref)
}
