// Package query builds derived queries from explicit criteria.
//
// Criteria name fields by their Go field names and are resolved through a
// table mapping at compile time:
//
//	q, err := query.Select(model.CountryTable).
//		Where(query.Gt("Population")).
//		OrderBy(query.Desc("Population")).
//		Compile()
//
// Compiled SQL uses "?" placeholders in condition order, followed by the
// limit parameter when there is one.
package query

import (
	"fmt"
	"strings"

	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/mapping"
)

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
	OpIsNull
	OpIsNotNull
	OpBetween
	OpIn
)

var opSQL = map[Op]string{
	OpEq: "=", OpNe: "<>", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=", OpLike: "LIKE",
	OpIsNull: "IS NULL", OpIsNotNull: "IS NOT NULL", OpBetween: "BETWEEN", OpIn: "IN",
}

// keyword is the derived-method spelling of an operator.
var keyword = map[Op]string{
	OpEq: "", OpNe: "Not", OpLt: "LessThan", OpLe: "LessThanEqual", OpGt: "GreaterThan",
	OpGe: "GreaterThanEqual", OpLike: "Like", OpIsNull: "IsNull", OpIsNotNull: "IsNotNull",
	OpBetween: "Between", OpIn: "In",
}

// Condition compares one field against bind parameters.
type Condition struct {
	Field string
	Op    Op
	// Arity is the number of values an IN condition takes.
	Arity int
}

func Eq(field string) Condition        { return Condition{Field: field, Op: OpEq} }
func Ne(field string) Condition        { return Condition{Field: field, Op: OpNe} }
func Lt(field string) Condition        { return Condition{Field: field, Op: OpLt} }
func Le(field string) Condition        { return Condition{Field: field, Op: OpLe} }
func Gt(field string) Condition        { return Condition{Field: field, Op: OpGt} }
func Ge(field string) Condition        { return Condition{Field: field, Op: OpGe} }
func Like(field string) Condition      { return Condition{Field: field, Op: OpLike} }
func IsNull(field string) Condition    { return Condition{Field: field, Op: OpIsNull} }
func IsNotNull(field string) Condition { return Condition{Field: field, Op: OpIsNotNull} }
func Between(field string) Condition   { return Condition{Field: field, Op: OpBetween} }

// In matches a field against n values.
func In(field string, n int) Condition { return Condition{Field: field, Op: OpIn, Arity: n} }

// params is the number of bind parameters the condition consumes.
func (c Condition) params() int {
	switch c.Op {
	case OpIsNull, OpIsNotNull:
		return 0
	case OpBetween:
		return 2
	case OpIn:
		return c.Arity
	default:
		return 1
	}
}

// Order sorts by one field.
type Order struct {
	Field string
	Desc  bool
}

func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Criteria describes a derived query over one mapped table.
type Criteria struct {
	table      *mapping.Table
	count      bool
	conds      []Condition
	orders     []Order
	limit      int
	limitParam bool
}

// Select starts a query returning whole records.
func Select(t *mapping.Table) *Criteria {
	return &Criteria{table: t}
}

// Count starts a query returning the number of matching records.
func Count(t *mapping.Table) *Criteria {
	return &Criteria{table: t, count: true}
}

// Where adds conditions, joined by AND.
func (c *Criteria) Where(conds ...Condition) *Criteria {
	c.conds = append(c.conds, conds...)
	return c
}

// OrderBy adds sort keys.
func (c *Criteria) OrderBy(orders ...Order) *Criteria {
	c.orders = append(c.orders, orders...)
	return c
}

// Limit caps the result at n rows.
func (c *Criteria) Limit(n int) *Criteria {
	c.limit = n
	return c
}

// LimitParam takes the row cap as the last bind parameter.
func (c *Criteria) LimitParam() *Criteria {
	c.limitParam = true
	return c
}

// Compiled is the SQL form of a criteria.
type Compiled struct {
	SQL string
	// Params is the number of bind parameters, limit parameter included.
	Params int
	// Name is the derived-method name of the query.
	Name string
}

// Compile validates the criteria and renders its SQL. The same criteria
// always render the same SQL.
func (c *Criteria) Compile() (*Compiled, error) {
	if c.table == nil {
		return nil, invalid("criteria has no table")
	}
	if c.count && (len(c.orders) > 0 || c.limit != 0 || c.limitParam) {
		return nil, invalid("count query cannot order or limit")
	}
	if c.limit < 0 || (c.limit != 0 && c.limitParam) {
		return nil, invalid(fmt.Sprintf("invalid limit %d (limit parameter: %v)", c.limit, c.limitParam))
	}

	var b strings.Builder
	if c.count {
		b.WriteString("SELECT COUNT(*) FROM ")
	} else {
		b.WriteString("SELECT ")
		b.WriteString(strings.Join(c.table.ColumnNames(), ", "))
		b.WriteString(" FROM ")
	}
	b.WriteString(c.table.Name)

	params := 0
	for i, cond := range c.conds {
		col, err := c.table.ColumnForField(cond.Field)
		if err != nil {
			return nil, err
		}
		if cond.Op == OpIn && cond.Arity < 1 {
			return nil, invalid(fmt.Sprintf("IN on %s needs at least one value", cond.Field))
		}
		if _, ok := opSQL[cond.Op]; !ok {
			return nil, invalid(fmt.Sprintf("unknown operator %d on %s", cond.Op, cond.Field))
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		writeCondition(&b, col, cond)
		params += cond.params()
	}

	seen := make(map[string]bool)
	for i, o := range c.orders {
		col, err := c.table.ColumnForField(o.Field)
		if err != nil {
			return nil, err
		}
		if seen[col] {
			return nil, invalid(fmt.Sprintf("duplicate ordering on %s", o.Field))
		}
		seen[col] = true
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(col)
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	switch {
	case c.limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", c.limit)
	case c.limitParam:
		b.WriteString(" LIMIT ?")
		params++
	}

	return &Compiled{SQL: b.String(), Params: params, Name: c.Describe()}, nil
}

func writeCondition(b *strings.Builder, col string, cond Condition) {
	b.WriteString(col)
	b.WriteByte(' ')
	b.WriteString(opSQL[cond.Op])
	switch cond.Op {
	case OpIsNull, OpIsNotNull:
	case OpBetween:
		b.WriteString(" ? AND ?")
	case OpIn:
		b.WriteString(" (")
		for i := 0; i < cond.Arity; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('?')
		}
		b.WriteByte(')')
	default:
		b.WriteString(" ?")
	}
}

// Describe renders the criteria as a derived-method name, for example
// findTop10ByPopulationGreaterThanOrderByPopulationDesc.
func (c *Criteria) Describe() string {
	var b strings.Builder
	if c.count {
		b.WriteString("count")
	} else {
		b.WriteString("find")
	}
	if c.limit > 0 {
		fmt.Fprintf(&b, "Top%d", c.limit)
	}
	if len(c.conds) > 0 {
		b.WriteString("By")
	} else if !c.count {
		b.WriteString("All")
	}
	for i, cond := range c.conds {
		if i > 0 {
			b.WriteString("And")
		}
		b.WriteString(exported(cond.Field))
		b.WriteString(keyword[cond.Op])
	}
	for i, o := range c.orders {
		if i == 0 {
			b.WriteString("OrderBy")
		}
		b.WriteString(exported(o.Field))
		if o.Desc {
			b.WriteString("Desc")
		} else {
			b.WriteString("Asc")
		}
	}
	return b.String()
}

func exported(field string) string {
	if field == "" {
		return field
	}
	return strings.ToUpper(field[:1]) + field[1:]
}

func invalid(msg string) error {
	return werrors.NewQueryError(werrors.CodeInvalidCriteria, msg)
}
