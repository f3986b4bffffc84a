package parser

import (
	"database/sql"
	"reflect"
	"testing"

	"github.com/arkilian/worlddb/internal/dialect"
	werrors "github.com/arkilian/worlddb/internal/errors"
)

func TestInspect(t *testing.T) {
	ph, err := Inspect("SELECT * FROM city WHERE countrycode = :code AND population > :min OR countrycode = :code")
	if err != nil {
		t.Fatal(err)
	}
	if ph.Positional != 0 {
		t.Errorf("positional = %d", ph.Positional)
	}
	if !reflect.DeepEqual(ph.Named, []string{"code", "min"}) {
		t.Errorf("named = %v", ph.Named)
	}

	_, err = Inspect("SELECT * FROM city WHERE id = ? AND countrycode = :code")
	if werrors.GetCode(err) != werrors.CodeMixedPlaceholders {
		t.Errorf("expected mixed placeholder error, got %v", err)
	}
}

func TestBind_Positional(t *testing.T) {
	query := "SELECT name FROM city WHERE id = ? AND name <> '?' LIMIT ?"

	got, args, err := Bind(query, dialect.StyleDollar, []interface{}{34, 5})
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT name FROM city WHERE id = $1 AND name <> '?' LIMIT $2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !reflect.DeepEqual(args, []interface{}{34, 5}) {
		t.Errorf("args = %v", args)
	}

	got, _, err = Bind(query, dialect.StyleQuestion, []interface{}{34, 5})
	if err != nil {
		t.Fatal(err)
	}
	if got != query {
		t.Errorf("question style should keep the query, got %q", got)
	}
}

func TestBind_Named(t *testing.T) {
	query := "SELECT name FROM city WHERE countrycode = :code OR district = :code LIMIT :limit"
	args := []interface{}{sql.Named("limit", 3), sql.Named("code", "ALB")}

	got, out, err := Bind(query, dialect.StyleDollar, args)
	if err != nil {
		t.Fatal(err)
	}
	if want := "SELECT name FROM city WHERE countrycode = $1 OR district = $1 LIMIT $2"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !reflect.DeepEqual(out, []interface{}{"ALB", 3}) {
		t.Errorf("args = %v", out)
	}

	got, out, err = Bind(query, dialect.StyleQuestion, args)
	if err != nil {
		t.Fatal(err)
	}
	if want := "SELECT name FROM city WHERE countrycode = ? OR district = ? LIMIT ?"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !reflect.DeepEqual(out, []interface{}{"ALB", "ALB", 3}) {
		t.Errorf("args = %v", out)
	}
}

func TestBind_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		args  []interface{}
		code  string
	}{
		{"too few args", "SELECT * FROM city WHERE id = ?", nil, werrors.CodeArgumentCount},
		{"too many args", "SELECT * FROM city", []interface{}{1}, werrors.CodeArgumentCount},
		{"missing named", "SELECT * FROM city WHERE id = :id", []interface{}{sql.Named("other", 1)}, werrors.CodeMissingArgument},
		{"positional into named", "SELECT * FROM city WHERE id = :id", []interface{}{1}, werrors.CodeMixedPlaceholders},
		{"named into positional", "SELECT * FROM city WHERE id = ?", []interface{}{sql.Named("id", 1)}, werrors.CodeMixedPlaceholders},
		{"unterminated", "SELECT 'oops", nil, werrors.CodeUnterminatedSQL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Bind(tt.query, dialect.StyleQuestion, tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if werrors.GetCode(err) != tt.code {
				t.Errorf("code = %q, want %q (%v)", werrors.GetCode(err), tt.code, err)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	script := `-- world subset
CREATE TABLE city (id INT PRIMARY KEY, name VARCHAR(35));
INSERT INTO city VALUES (1, 'Kabul; capital');

/* trailing comment only */ ;
INSERT INTO city VALUES (2, 'Qandahar')`

	stmts, err := SplitStatements(script)
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "INSERT INTO city VALUES (1, 'Kabul; capital')" {
		t.Errorf("unexpected statement: %q", stmts[1])
	}
	if stmts[2] != "INSERT INTO city VALUES (2, 'Qandahar')" {
		t.Errorf("unexpected statement: %q", stmts[2])
	}

	if _, err := SplitStatements("INSERT INTO city VALUES ('x"); err == nil {
		t.Error("expected error for unterminated literal")
	}
}

func TestBind_BackslashEscapes(t *testing.T) {
	mysql, err := dialect.Lookup("mysql")
	if err != nil {
		t.Fatal(err)
	}
	pgx, err := dialect.Lookup("pgx")
	if err != nil {
		t.Fatal(err)
	}
	query := `SELECT id FROM city WHERE name = 'O\'Brien?' AND district = "a\"b:c" AND id = ?`

	got, args, err := Bind(query, mysql.Style, []interface{}{1}, ForDialect(mysql))
	if err != nil {
		t.Fatalf("mysql literal rejected: %v", err)
	}
	if got != query || !reflect.DeepEqual(args, []interface{}{1}) {
		t.Errorf("got %q %v", got, args)
	}

	if _, _, err := Bind(`SELECT 'a\\' , ?`, mysql.Style, []interface{}{1}, ForDialect(mysql)); err != nil {
		t.Errorf("escaped backslash before the closing quote: %v", err)
	}

	// Standard SQL has no backslash escape: the literal ends at \'.
	_, _, err = Bind(`SELECT id FROM city WHERE name = 'O\'Brien' AND id = ?`, pgx.Style, []interface{}{1}, ForDialect(pgx))
	if werrors.GetCode(err) != werrors.CodeUnterminatedSQL {
		t.Errorf("postgres should see an unterminated literal, got %v", err)
	}
}

func TestSplitStatements_BackslashEscapes(t *testing.T) {
	script := `INSERT INTO city (name) VALUES ('Cote d\'Ivoire; north');
INSERT INTO city (name) VALUES ('Lome');`

	got, err := SplitStatements(script, WithBackslashEscapes())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != `INSERT INTO city (name) VALUES ('Cote d\'Ivoire; north')` {
		t.Errorf("statements = %q", got)
	}
}
