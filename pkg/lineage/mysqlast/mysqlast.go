// Package mysqlast extracts table lineage from MySQL statements using the
// TiDB parser's full MySQL grammar.
//
// Role assignment works on the AST rather than on keywords: INSERT and
// REPLACE targets, UPDATE targets (the tables assigned in SET), DELETE
// targets and CREATE TABLE/VIEW names are outputs; every other table name
// in a tracked statement is an input. SQL the TiDB grammar rejects falls
// back to the tolerant scanner in package lineage.
package mysqlast

import (
	"fmt"
	"sync"

	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/mysql"
	"github.com/leapstack-labs/lineagekit/pkg/lineage"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // value expression driver
)

// A TiDB parser is not safe for concurrent use; each call borrows one.
var parsers = sync.Pool{
	New: func() any { return parser.New() },
}

// Parse extracts lineage from MySQL sql. It falls back to the tolerant
// scanner when the statement does not parse.
func Parse(sql string) *lineage.Fact {
	fact, err := ParseStrict(sql)
	if err != nil {
		return lineage.ParseWithDialect(sql, mysql.MySQL)
	}
	return fact
}

// ParseStrict extracts lineage from MySQL sql and returns the TiDB parse
// error instead of falling back.
func ParseStrict(sql string) (*lineage.Fact, error) {
	p := parsers.Get().(*parser.Parser)
	defer parsers.Put(p)

	stmts, _, err := p.ParseSQL(sql)
	if err != nil {
		return nil, fmt.Errorf("parse mysql: %w", err)
	}

	b := newFactBuilder()
	for _, stmt := range stmts {
		b.statement(stmt)
	}
	return b.fact(), nil
}

// factBuilder accumulates tables across statements in first-occurrence order.
type factBuilder struct {
	ins, outs       []core.TableRef
	seenIn, seenOut map[core.TableRef]struct{}
}

func newFactBuilder() *factBuilder {
	return &factBuilder{
		ins:     []core.TableRef{},
		outs:    []core.TableRef{},
		seenIn:  make(map[core.TableRef]struct{}),
		seenOut: make(map[core.TableRef]struct{}),
	}
}

func (b *factBuilder) fact() *lineage.Fact {
	return &lineage.Fact{InTables: b.ins, OutTables: b.outs}
}

func (b *factBuilder) addIn(ref core.TableRef) {
	if _, ok := b.seenIn[ref]; ok {
		return
	}
	b.seenIn[ref] = struct{}{}
	b.ins = append(b.ins, ref)
}

func (b *factBuilder) addOut(ref core.TableRef) {
	if _, ok := b.seenOut[ref]; ok {
		return
	}
	b.seenOut[ref] = struct{}{}
	b.outs = append(b.outs, ref)
}

// statement classifies every table name of one statement. Statements
// without table lineage (DROP, ALTER, SET, SHOW ...) are ignored.
func (b *factBuilder) statement(stmt ast.StmtNode) {
	var (
		targets = make(map[*ast.TableName]struct{})
		skip    = make(map[*ast.TableName]struct{})
	)

	switch n := stmt.(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
	case *ast.InsertStmt:
		if n.Table != nil {
			for _, tn := range firstTables(n.Table.TableRefs, 1) {
				targets[tn] = struct{}{}
			}
		}
	case *ast.UpdateStmt:
		for _, tn := range updateTargets(n) {
			targets[tn] = struct{}{}
		}
	case *ast.DeleteStmt:
		if n.IsMultiTable && n.Tables != nil {
			sources := tableSources(n.TableRefs)
			for _, tn := range n.Tables.Tables {
				skip[tn] = struct{}{}
				if src, ok := sources[tn.Name.L]; ok && tn.Schema.L == "" {
					targets[src] = struct{}{}
				} else {
					b.addOut(refOf(tn))
				}
			}
		} else if n.TableRefs != nil {
			for _, tn := range firstTables(n.TableRefs.TableRefs, 1) {
				targets[tn] = struct{}{}
			}
		}
	case *ast.CreateTableStmt:
		targets[n.Table] = struct{}{}
	case *ast.CreateViewStmt:
		targets[n.ViewName] = struct{}{}
	case *ast.TruncateTableStmt:
		targets[n.Table] = struct{}{}
	case *ast.LoadDataStmt:
		targets[n.Table] = struct{}{}
	default:
		return
	}

	walkScoped(stmt, func(tn *ast.TableName, isCTE func(string) bool) {
		if _, ok := skip[tn]; ok {
			return
		}
		if tn.Schema.L == "" && isCTE(tn.Name.L) {
			return
		}
		if _, ok := targets[tn]; ok {
			b.addOut(refOf(tn))
			return
		}
		b.addIn(refOf(tn))
	})
}

// updateTargets returns the tables assigned in SET. Unqualified
// assignments target the first table of the statement.
func updateTargets(n *ast.UpdateStmt) []*ast.TableName {
	if n.TableRefs == nil {
		return nil
	}
	sources := tableSources(n.TableRefs)

	var out []*ast.TableName
	seen := make(map[*ast.TableName]struct{})
	for _, a := range n.List {
		if a.Column == nil || a.Column.Table.L == "" {
			continue
		}
		if tn, ok := sources[a.Column.Table.L]; ok {
			if _, dup := seen[tn]; !dup {
				seen[tn] = struct{}{}
				out = append(out, tn)
			}
		}
	}
	if len(out) == 0 {
		out = firstTables(n.TableRefs.TableRefs, 1)
	}
	return out
}

// tableSources maps each alias, or table name when unaliased, to its table.
func tableSources(refs *ast.TableRefsClause) map[string]*ast.TableName {
	sources := make(map[string]*ast.TableName)
	if refs == nil {
		return sources
	}
	walk(refs, func(node ast.Node) {
		ts, ok := node.(*ast.TableSource)
		if !ok {
			return
		}
		tn, ok := ts.Source.(*ast.TableName)
		if !ok {
			return
		}
		if ts.AsName.L != "" {
			sources[ts.AsName.L] = tn
		} else {
			sources[tn.Name.L] = tn
		}
	})
	return sources
}

// firstTables returns up to limit table names from a join tree, left first.
func firstTables(join *ast.Join, limit int) []*ast.TableName {
	var out []*ast.TableName
	if join == nil {
		return out
	}
	walk(join, func(node ast.Node) {
		if len(out) >= limit {
			return
		}
		if tn, ok := node.(*ast.TableName); ok {
			out = append(out, tn)
		}
	})
	return out
}

func refOf(tn *ast.TableName) core.TableRef {
	return core.TableRef{Schema: tn.Schema.O, Name: tn.Name.O}
}

// visitor calls fn for every node in pre-order.
type visitor struct {
	fn func(ast.Node)
}

func (v *visitor) Enter(n ast.Node) (ast.Node, bool) {
	v.fn(n)
	return n, false
}

func (v *visitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

func walk(node ast.Node, fn func(ast.Node)) {
	node.Accept(&visitor{fn: fn})
}

// scopedVisitor tracks the CTE names visible at each table name. A WITH
// clause is visible inside the statement that owns it, including nested
// subqueries and the CTE bodies themselves.
type scopedVisitor struct {
	fn     func(*ast.TableName, func(string) bool)
	scopes []*ast.WithClause
}

func (v *scopedVisitor) Enter(n ast.Node) (ast.Node, bool) {
	if w := withOf(n); w != nil {
		v.scopes = append(v.scopes, w)
	}
	if tn, ok := n.(*ast.TableName); ok {
		v.fn(tn, v.isCTE)
	}
	return n, false
}

func (v *scopedVisitor) Leave(n ast.Node) (ast.Node, bool) {
	if w := withOf(n); w != nil && len(v.scopes) > 0 {
		v.scopes = v.scopes[:len(v.scopes)-1]
	}
	return n, true
}

func (v *scopedVisitor) isCTE(name string) bool {
	for _, w := range v.scopes {
		for _, cte := range w.CTEs {
			if cte.Name.L == name {
				return true
			}
		}
	}
	return false
}

func withOf(n ast.Node) *ast.WithClause {
	switch n := n.(type) {
	case *ast.SelectStmt:
		return n.With
	case *ast.SetOprStmt:
		return n.With
	case *ast.UpdateStmt:
		return n.With
	case *ast.DeleteStmt:
		return n.With
	}
	return nil
}

func walkScoped(node ast.Node, fn func(*ast.TableName, func(string) bool)) {
	node.Accept(&scopedVisitor{fn: fn})
}
