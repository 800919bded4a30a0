package lineage

import (
	"fmt"
	"strings"
)

// TokenType represents the type of a lexical token.
type TokenType int

//nolint:revive // TOKEN_* names are intentionally ALL_CAPS for SQL token conventions
const (
	// TOKEN_EOF represents end of input.
	TOKEN_EOF TokenType = iota
	// TOKEN_ILLEGAL represents an unterminated or unrecognized construct.
	TOKEN_ILLEGAL

	TOKEN_IDENT    // users, "Users", `users`, [users]
	TOKEN_NUMBER   // 123, 45.67, 1e10
	TOKEN_STRING   // 'hello', $$body$$, E'x'
	TOKEN_PARAM    // $1, ?, :name, @var
	TOKEN_TEMPLATE // {{ ds }}, {% if %}

	TOKEN_DOT       // .
	TOKEN_COMMA     // ,
	TOKEN_SEMICOLON // ;
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_STAR      // *
	TOKEN_OP        // any other operator

	// Keywords (alphabetical)
	TOKEN_AS
	TOKEN_COPY
	TOKEN_CREATE
	TOKEN_DELETE
	TOKEN_DISTINCT
	TOKEN_DO
	TOKEN_EXISTS
	TOKEN_FOR
	TOKEN_FROM
	TOKEN_IF
	TOKEN_INSERT
	TOKEN_INTO
	TOKEN_JOIN
	TOKEN_KEY
	TOKEN_LATERAL
	TOKEN_MATERIALIZED
	TOKEN_MERGE
	TOKEN_NOT
	TOKEN_ONLY
	TOKEN_OR
	TOKEN_OVERWRITE
	TOKEN_RECURSIVE
	TOKEN_REPLACE
	TOKEN_SELECT
	TOKEN_STRAIGHT_JOIN
	TOKEN_TABLE
	TOKEN_THEN
	TOKEN_TO
	TOKEN_TRUNCATE
	TOKEN_UPDATE
	TOKEN_USING
	TOKEN_VALUES
	TOKEN_VIEW
	TOKEN_WITH
)

// Token represents a lexical token with position information.
type Token struct {
	Type    TokenType
	Literal string // identifier or string body with quotes removed
	Quoted  bool   // true for quoted identifiers
	Pos     Position
}

// Position represents a location in the source code.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based byte offset
}

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

// IsKeyword reports whether the token type is a keyword.
func (t TokenType) IsKeyword() bool {
	return t >= TOKEN_AS
}

// tokenNames maps non-keyword token types to their string representations.
// Keyword names are filled in from the keywords table.
var tokenNames = map[TokenType]string{
	TOKEN_EOF:     "EOF",
	TOKEN_ILLEGAL: "ILLEGAL",

	TOKEN_IDENT:    "IDENT",
	TOKEN_NUMBER:   "NUMBER",
	TOKEN_STRING:   "STRING",
	TOKEN_PARAM:    "PARAM",
	TOKEN_TEMPLATE: "TEMPLATE",

	TOKEN_DOT:       ".",
	TOKEN_COMMA:     ",",
	TOKEN_SEMICOLON: ";",
	TOKEN_LPAREN:    "(",
	TOKEN_RPAREN:    ")",
	TOKEN_STAR:      "*",
	TOKEN_OP:        "OP",
}

// keywords maps lowercase keyword strings to their token types.
var keywords = map[string]TokenType{
	"as":            TOKEN_AS,
	"copy":          TOKEN_COPY,
	"create":        TOKEN_CREATE,
	"delete":        TOKEN_DELETE,
	"distinct":      TOKEN_DISTINCT,
	"do":            TOKEN_DO,
	"exists":        TOKEN_EXISTS,
	"for":           TOKEN_FOR,
	"from":          TOKEN_FROM,
	"if":            TOKEN_IF,
	"insert":        TOKEN_INSERT,
	"into":          TOKEN_INTO,
	"join":          TOKEN_JOIN,
	"key":           TOKEN_KEY,
	"lateral":       TOKEN_LATERAL,
	"materialized":  TOKEN_MATERIALIZED,
	"merge":         TOKEN_MERGE,
	"not":           TOKEN_NOT,
	"only":          TOKEN_ONLY,
	"or":            TOKEN_OR,
	"overwrite":     TOKEN_OVERWRITE,
	"recursive":     TOKEN_RECURSIVE,
	"replace":       TOKEN_REPLACE,
	"select":        TOKEN_SELECT,
	"straight_join": TOKEN_STRAIGHT_JOIN,
	"table":         TOKEN_TABLE,
	"then":          TOKEN_THEN,
	"to":            TOKEN_TO,
	"truncate":      TOKEN_TRUNCATE,
	"update":        TOKEN_UPDATE,
	"using":         TOKEN_USING,
	"values":        TOKEN_VALUES,
	"view":          TOKEN_VIEW,
	"with":          TOKEN_WITH,
}

func init() {
	for word, tok := range keywords {
		tokenNames[tok] = strings.ToUpper(word)
	}
}

// LookupIdent returns the token type for the given lowercase identifier.
// If the identifier is a keyword, the keyword token type is returned.
// Otherwise, TOKEN_IDENT is returned.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TOKEN_IDENT
}
