package parser

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/arkilian/worlddb/internal/dialect"
	werrors "github.com/arkilian/worlddb/internal/errors"
)

// Placeholders summarises the bind parameters found in a query.
type Placeholders struct {
	// Positional is the number of "?" placeholders.
	Positional int
	// Named lists the distinct ":name" parameters in order of first use.
	Named []string
}

// Inspect scans a query and reports its placeholders.
// It fails on unterminated literals or comments and when positional and
// named placeholders are mixed in one query.
func Inspect(query string, opts ...Option) (Placeholders, error) {
	var p Placeholders
	seen := make(map[string]bool)
	for _, tok := range Tokenize(query, opts...) {
		switch tok.Type {
		case TokenError:
			return Placeholders{}, werrors.NewQueryError(werrors.CodeUnterminatedSQL,
				fmt.Sprintf("%s at offset %d", tok.Literal, tok.Pos))
		case TokenPositional:
			p.Positional++
		case TokenNamed:
			if !seen[tok.Literal] {
				seen[tok.Literal] = true
				p.Named = append(p.Named, tok.Literal)
			}
		}
	}
	if p.Positional > 0 && len(p.Named) > 0 {
		return Placeholders{}, werrors.NewQueryError(werrors.CodeMixedPlaceholders,
			"query mixes positional (?) and named (:name) placeholders")
	}
	return p, nil
}

// Bind rewrites the placeholders of query into the given style and returns
// the argument list in the order the driver expects.
//
// Positional queries take plain arguments, one per "?". Named queries take
// sql.NamedArg values (sql.Named); a name used several times binds the same
// value each time.
func Bind(query string, style dialect.PlaceholderStyle, args []interface{}, opts ...Option) (string, []interface{}, error) {
	ph, err := Inspect(query, opts...)
	if err != nil {
		return "", nil, err
	}

	named := make(map[string]interface{})
	var positional []interface{}
	for _, a := range args {
		if na, ok := a.(sql.NamedArg); ok {
			named[na.Name] = na.Value
			continue
		}
		positional = append(positional, a)
	}

	if len(ph.Named) > 0 {
		if len(positional) > 0 {
			return "", nil, werrors.NewQueryError(werrors.CodeMixedPlaceholders,
				"named query called with positional arguments")
		}
		for _, name := range ph.Named {
			if _, ok := named[name]; !ok {
				return "", nil, werrors.NewQueryError(werrors.CodeMissingArgument,
					fmt.Sprintf("no value for parameter :%s", name))
			}
		}
	} else {
		if len(named) > 0 {
			return "", nil, werrors.NewQueryError(werrors.CodeMixedPlaceholders,
				"positional query called with named arguments")
		}
		if len(positional) != ph.Positional {
			return "", nil, werrors.NewQueryError(werrors.CodeArgumentCount,
				fmt.Sprintf("query has %d placeholder(s), got %d argument(s)", ph.Positional, len(positional)))
		}
	}

	var (
		b       strings.Builder
		out     []interface{}
		n       int
		indexOf = make(map[string]int)
	)
	b.Grow(len(query))

	for _, tok := range Tokenize(query, opts...) {
		switch tok.Type {
		case TokenPositional:
			n++
			b.WriteString(render(style, n))
			out = append(out, positional[n-1])
		case TokenNamed:
			if style == dialect.StyleDollar {
				idx, ok := indexOf[tok.Literal]
				if !ok {
					out = append(out, named[tok.Literal])
					idx = len(out)
					indexOf[tok.Literal] = idx
				}
				b.WriteString(render(style, idx))
				continue
			}
			out = append(out, named[tok.Literal])
			b.WriteString(render(style, len(out)))
		default:
			b.WriteString(tok.Literal)
		}
	}
	return b.String(), out, nil
}

func render(style dialect.PlaceholderStyle, n int) string {
	if style == dialect.StyleDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// SplitStatements splits a script on semicolons outside literals and
// comments. Statements holding only comments or whitespace are dropped.
func SplitStatements(script string, opts ...Option) ([]string, error) {
	var (
		statements []string
		b          strings.Builder
		content    bool
	)
	flush := func() {
		if content {
			statements = append(statements, strings.TrimSpace(b.String()))
		}
		b.Reset()
		content = false
	}

	for _, tok := range Tokenize(script, opts...) {
		switch tok.Type {
		case TokenError:
			return nil, werrors.NewQueryError(werrors.CodeUnterminatedSQL,
				fmt.Sprintf("%s at offset %d", tok.Literal, tok.Pos))
		case TokenSemicolon:
			flush()
		case TokenComment:
			b.WriteString(tok.Literal)
		case TokenNamed:
			b.WriteString(":" + tok.Literal)
			content = true
		default:
			b.WriteString(tok.Literal)
			if strings.TrimSpace(tok.Literal) != "" {
				content = true
			}
		}
	}
	flush()
	return statements, nil
}
