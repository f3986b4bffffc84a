// Package parser scans SQL text for the parts worlddb cares about:
// bind placeholders and statement boundaries. It does not parse SQL
// grammar; the engine does that.
package parser

import (
	"fmt"

	"github.com/arkilian/worlddb/internal/dialect"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenText        // any run of ordinary SQL text
	TokenString      // '...'
	TokenQuotedIdent // "..." or `...`
	TokenComment     // -- ... or /* ... */
	TokenPositional  // ?
	TokenNamed       // :name
	TokenSemicolon   // ;
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Position in input
}

// String returns a string representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type.String(), t.Literal, t.Pos)
}

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "ERROR"
	case TokenText:
		return "TEXT"
	case TokenString:
		return "STRING"
	case TokenQuotedIdent:
		return "QUOTED_IDENT"
	case TokenComment:
		return "COMMENT"
	case TokenPositional:
		return "?"
	case TokenNamed:
		return "NAMED"
	case TokenSemicolon:
		return ";"
	default:
		return "UNKNOWN"
	}
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // Current position in input
	readPos int  // Reading position (after current char)
	ch      byte // Current character

	// backslash makes \ escape the next character inside '...' and "...".
	backslash bool
}

// Option adjusts how a Lexer reads literals.
type Option func(*Lexer)

// WithBackslashEscapes accepts \' and \" inside quoted literals, as
// MySQL does by default.
func WithBackslashEscapes() Option {
	return func(l *Lexer) { l.backslash = true }
}

// ForDialect returns the literal rules of a dialect's SQL family.
func ForDialect(d *dialect.Dialect) Option {
	return func(l *Lexer) {
		l.backslash = d != nil && d.Family == dialect.FamilyMySQL
	}
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string, opts ...Option) *Lexer {
	l := &Lexer{input: input}
	for _, opt := range opts {
		opt(l)
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances the position.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token from the input.
// Literal holds the exact source text of the token, except for TokenNamed
// where it holds the parameter name without the colon.
func (l *Lexer) NextToken() Token {
	start := l.pos
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: start}
	}

	switch {
	case l.ch == '\'':
		return l.readQuoted('\'', TokenString)
	case l.ch == '"':
		return l.readQuoted('"', TokenQuotedIdent)
	case l.ch == '`':
		return l.readQuoted('`', TokenQuotedIdent)
	case l.ch == '-' && l.peekChar() == '-':
		return l.readLineComment()
	case l.ch == '/' && l.peekChar() == '*':
		return l.readBlockComment()
	case l.ch == '?':
		l.readChar()
		return Token{Type: TokenPositional, Literal: "?", Pos: start}
	case l.ch == ';':
		l.readChar()
		return Token{Type: TokenSemicolon, Literal: ";", Pos: start}
	case l.ch == ':' && isIdentStart(l.peekChar()):
		l.readChar()
		nameStart := l.pos
		for !l.atEOF() && isIdentPart(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenNamed, Literal: l.input[nameStart:l.pos], Pos: start}
	}

	return l.readText()
}

// readText consumes ordinary text up to the next special character.
// A "::" cast is kept inside the text run.
func (l *Lexer) readText() Token {
	start := l.pos
	for !l.atEOF() {
		switch {
		case l.ch == ':' && l.peekChar() == ':':
			l.readChar()
			l.readChar()
			continue
		case l.ch == '\'' || l.ch == '"' || l.ch == '`' || l.ch == '?' || l.ch == ';':
			return Token{Type: TokenText, Literal: l.input[start:l.pos], Pos: start}
		case l.ch == '-' && l.peekChar() == '-':
			return Token{Type: TokenText, Literal: l.input[start:l.pos], Pos: start}
		case l.ch == '/' && l.peekChar() == '*':
			return Token{Type: TokenText, Literal: l.input[start:l.pos], Pos: start}
		case l.ch == ':' && isIdentStart(l.peekChar()) && l.pos > start:
			return Token{Type: TokenText, Literal: l.input[start:l.pos], Pos: start}
		}
		l.readChar()
	}
	return Token{Type: TokenText, Literal: l.input[start:l.pos], Pos: start}
}

// readQuoted reads a quoted literal where the quote is escaped by doubling,
// or by a backslash when the lexer accepts backslash escapes.
func (l *Lexer) readQuoted(quote byte, typ TokenType) Token {
	start := l.pos
	l.readChar() // opening quote
	for {
		if l.atEOF() {
			return Token{Type: TokenError, Literal: fmt.Sprintf("unterminated %s", typ), Pos: start}
		}
		if l.backslash && l.ch == '\\' && quote != '`' {
			l.readChar()
			if !l.atEOF() {
				l.readChar()
			}
			continue
		}
		if l.ch == quote {
			if l.peekChar() == quote {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing quote
			return Token{Type: typ, Literal: l.input[start:l.pos], Pos: start}
		}
		l.readChar()
	}
}

func (l *Lexer) readLineComment() Token {
	start := l.pos
	for !l.atEOF() && l.ch != '\n' {
		l.readChar()
	}
	return Token{Type: TokenComment, Literal: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) readBlockComment() Token {
	start := l.pos
	l.readChar()
	l.readChar()
	for {
		if l.atEOF() {
			return Token{Type: TokenError, Literal: "unterminated comment", Pos: start}
		}
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenComment, Literal: l.input[start:l.pos], Pos: start}
		}
		l.readChar()
	}
}

// Tokenize returns all tokens of the input, up to and excluding EOF.
// It stops at the first error token, which is included.
func Tokenize(input string, opts ...Option) []Token {
	l := NewLexer(input, opts...)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			return tokens
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenError {
			return tokens
		}
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
