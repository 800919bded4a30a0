package lineage

import (
	"strings"

	"github.com/leapstack-labs/lineagekit/pkg/dialect"
)

// Lexer tokenizes SQL input. It never fails: unterminated strings, quoted
// identifiers and comments run to the end of input and are reported as
// TOKEN_ILLEGAL so the scanner can degrade instead of aborting.
type Lexer struct {
	input   string
	dialect *dialect.Dialect
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string, d *dialect.Dialect) *Lexer {
	l := &Lexer{
		input:   input,
		dialect: d,
		line:    1,
		col:     0,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// atEOF distinguishes a real NUL byte from the end of input.
func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// currentPos returns the current position.
func (l *Lexer) currentPos() Position {
	return Position{
		Line:   l.line,
		Column: l.col,
		Offset: l.pos,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()
	tok := Token{Pos: pos}

	if l.atEOF() {
		tok.Type = TOKEN_EOF
		return tok
	}

	switch ch := l.ch; {
	case ch == '\'':
		tok.Type, tok.Literal = l.readString(l.dialect.BackslashEscapes)
		return tok
	case (ch == 'e' || ch == 'E') && l.peekChar() == '\'':
		// PostgreSQL escape string: E'it\'s'
		l.readChar()
		tok.Type, tok.Literal = l.readString(true)
		return tok
	case ch == '"' && l.dialect.DoubleQuotedStrings:
		tok.Type, tok.Literal = l.readDelimited('"', l.dialect.BackslashEscapes)
		if tok.Type == TOKEN_IDENT {
			tok.Type = TOKEN_STRING
		}
		return tok
	case l.dialect.IsIdentQuote(ch):
		tok.Type, tok.Literal = l.readDelimited(l.dialect.ClosingQuote(ch), false)
		tok.Quoted = true
		return tok
	case ch == '$':
		return l.readDollar(pos)
	case ch == '{' && (l.peekChar() == '{' || l.peekChar() == '%' || l.peekChar() == '#'):
		tok.Type, tok.Literal = l.readTemplate()
		return tok
	case ch == '?':
		tok = Token{Type: TOKEN_PARAM, Literal: "?", Pos: pos}
	case ch == ':' && l.peekChar() == ':':
		// PostgreSQL cast operator
		l.readChar()
		tok = Token{Type: TOKEN_OP, Literal: "::", Pos: pos}
	case (ch == ':' || ch == '@') && isIdentStart(l.peekChar()):
		start := l.pos
		l.readChar()
		for isIdentPart(l.ch) {
			l.readChar()
		}
		return Token{Type: TOKEN_PARAM, Literal: l.input[start:l.pos], Pos: pos}
	case isIdentStart(ch):
		lit := l.readIdentifier()
		return Token{Type: LookupIdent(strings.ToLower(lit)), Literal: lit, Pos: pos}
	case isDigit(ch):
		return Token{Type: TOKEN_NUMBER, Literal: l.readNumber(), Pos: pos}
	case ch == '.':
		if isDigit(l.peekChar()) {
			return Token{Type: TOKEN_NUMBER, Literal: l.readNumber(), Pos: pos}
		}
		tok = Token{Type: TOKEN_DOT, Literal: ".", Pos: pos}
	case ch == ',':
		tok = Token{Type: TOKEN_COMMA, Literal: ",", Pos: pos}
	case ch == ';':
		tok = Token{Type: TOKEN_SEMICOLON, Literal: ";", Pos: pos}
	case ch == '(':
		tok = Token{Type: TOKEN_LPAREN, Literal: "(", Pos: pos}
	case ch == ')':
		tok = Token{Type: TOKEN_RPAREN, Literal: ")", Pos: pos}
	case ch == '*':
		tok = Token{Type: TOKEN_STAR, Literal: "*", Pos: pos}
	default:
		tok = Token{Type: TOKEN_OP, Literal: string(ch), Pos: pos}
	}

	l.readChar()
	return tok
}

// skipWhitespaceAndComments skips whitespace and comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' {
			l.readChar()
		}

		// Skip line comment (-- ...)
		if l.ch == '-' && l.peekChar() == '-' {
			l.skipLineComment()
			continue
		}

		// Skip line comment (# ...)
		if l.ch == '#' && l.dialect.HashComments {
			l.skipLineComment()
			continue
		}

		// Skip block comment (/* ... */)
		if l.ch == '/' && l.peekChar() == '*' {
			l.skipBlockComment()
			continue
		}

		break
	}
}

// skipLineComment skips a line comment.
func (l *Lexer) skipLineComment() {
	for l.ch != '\n' && !l.atEOF() {
		l.readChar()
	}
}

// skipBlockComment skips a block comment.
func (l *Lexer) skipBlockComment() {
	l.readChar() // skip '/'
	l.readChar() // skip '*'

	for {
		if l.atEOF() {
			return // Unterminated block comment
		}
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar() // skip '*'
			l.readChar() // skip '/'
			return
		}
		l.readChar()
	}
}

// readString reads a single-quoted string literal.
// Handles doubled single quotes as escape: 'it''s' -> it's
func (l *Lexer) readString(backslash bool) (TokenType, string) {
	typ, lit := l.readDelimited('\'', backslash)
	if typ == TOKEN_IDENT {
		typ = TOKEN_STRING
	}
	return typ, lit
}

// readDelimited reads text up to the end delimiter, treating a doubled end
// character as an escaped literal. It returns TOKEN_IDENT on success and
// TOKEN_ILLEGAL when input ends before the closing delimiter.
func (l *Lexer) readDelimited(end byte, backslash bool) (TokenType, string) {
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.atEOF() {
			return TOKEN_ILLEGAL, result.String()
		}
		switch {
		case backslash && l.ch == '\\':
			l.readChar()
			if l.atEOF() {
				return TOKEN_ILLEGAL, result.String()
			}
			result.WriteByte(l.ch)
			l.readChar()
		case l.ch == end:
			if l.peekChar() == end {
				// Doubled quote escape
				result.WriteByte(end)
				l.readChar() // skip first quote
				l.readChar() // skip second quote
				continue
			}
			l.readChar() // skip closing quote
			return TOKEN_IDENT, result.String()
		default:
			result.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// readDollar reads a $tag$...$tag$ string when the dialect supports it,
// or a positional parameter such as $1.
func (l *Lexer) readDollar(pos Position) Token {
	start := l.pos

	if l.dialect.DollarQuoting {
		// Find the opening delimiter: $ [tag] $
		j := l.readPos
		for j < len(l.input) && isIdentPart(l.input[j]) && l.input[j] != '$' {
			j++
		}
		tagOK := j < len(l.input) && l.input[j] == '$' && (j == l.readPos || !isDigit(l.input[l.readPos]))
		if tagOK {
			delim := l.input[start : j+1]
			bodyStart := j + 1
			idx := strings.Index(l.input[bodyStart:], delim)
			if idx < 0 {
				l.advanceTo(len(l.input))
				return Token{Type: TOKEN_ILLEGAL, Literal: l.input[bodyStart:], Pos: pos}
			}
			body := l.input[bodyStart : bodyStart+idx]
			l.advanceTo(bodyStart + idx + len(delim))
			return Token{Type: TOKEN_STRING, Literal: body, Pos: pos}
		}
	}

	l.readChar() // skip '$'
	for isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TOKEN_PARAM, Literal: l.input[start:l.pos], Pos: pos}
}

// readTemplate reads a Jinja-style placeholder ({{ }}, {% %}, {# #}).
// Workflow SQL is often templated; a placeholder can never be a table.
func (l *Lexer) readTemplate() (TokenType, string) {
	start := l.pos
	closer := "}}"
	switch l.peekChar() {
	case '%':
		closer = "%}"
	case '#':
		closer = "#}"
	}
	idx := strings.Index(l.input[l.pos+2:], closer)
	if idx < 0 {
		l.advanceTo(len(l.input))
		return TOKEN_ILLEGAL, l.input[start:]
	}
	end := l.pos + 2 + idx + len(closer)
	l.advanceTo(end)
	return TOKEN_TEMPLATE, l.input[start:end]
}

// advanceTo moves the lexer forward to the given byte offset.
func (l *Lexer) advanceTo(offset int) {
	for l.pos < offset && !l.atEOF() {
		l.readChar()
	}
}

// readIdentifier reads an unquoted identifier.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *Lexer) readNumber() string {
	start := l.pos

	// Read integer part
	for isDigit(l.ch) {
		l.readChar()
	}

	// Read decimal part
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // skip '.'
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	// Read exponent part (e.g., 1e10, 1E-5)
	if (l.ch == 'e' || l.ch == 'E') && (isDigit(l.peekChar()) || l.peekChar() == '+' || l.peekChar() == '-') {
		l.readChar() // skip 'e' or 'E'
		if l.ch == '+' || l.ch == '-' {
			l.readChar() // skip sign
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	return l.input[start:l.pos]
}

// isIdentStart returns true if ch can begin an unquoted identifier.
// Bytes >= 0x80 are treated as letters so UTF-8 names stay intact.
func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

// isIdentPart returns true if ch can continue an unquoted identifier.
func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}

// isDigit returns true if ch is a digit.
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens from the input, ending with TOKEN_EOF.
func Tokenize(input string, d *dialect.Dialect) []Token {
	l := NewLexer(input, d)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOF {
			break
		}
	}
	return tokens
}
