// Package sqlgen provides the SQL intermediate representation used by the
// participant finder. It models the pieces the finder actually composes
// (boolean criteria trees, LEFT [LATERAL] joins, ordered and paginated
// SELECTs) rather than generic SQL syntax.
//
// Expressions render through an Args collector so every runtime value
// becomes a numbered bind placeholder. Nothing supplied by a caller is ever
// inlined into the SQL text.
package sqlgen

import (
	"fmt"
	"strings"
)

// Args collects bind parameters while an expression tree renders.
// Each call to Bind returns the placeholder for the next positional
// parameter ($1, $2, ...).
type Args struct {
	values []any
}

// Bind registers a value and returns its placeholder.
func (a *Args) Bind(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// Values returns the collected bind values in placeholder order.
func (a *Args) Values() []any {
	return a.values
}

// Expr is the interface all SQL expression types implement.
type Expr interface {
	SQL(args *Args) string
}

// Col represents a table column reference (e.g. p.id).
type Col struct {
	Table  string
	Column string
}

// SQL renders the column reference.
func (c Col) SQL(*Args) string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// Arg represents a runtime value rendered as a bind placeholder.
type Arg struct {
	Value any
}

// SQL binds the value and renders its placeholder.
func (a Arg) SQL(args *Args) string {
	return args.Bind(a.Value)
}

// Raw is an escape hatch for arbitrary SQL fragments.
type Raw string

// SQL renders the raw SQL as-is.
func (r Raw) SQL(*Args) string {
	return string(r)
}

// Func represents a SQL function call.
type Func struct {
	Name string
	Exprs []Expr
}

// SQL renders the function call.
func (f Func) SQL(args *Args) string {
	parts := make([]string, len(f.Exprs))
	for i, e := range f.Exprs {
		parts[i] = e.SQL(args)
	}
	return f.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Alias wraps an expression with an alias (expr AS alias).
type Alias struct {
	Expr Expr
	Name string
}

// SQL renders the aliased expression.
func (a Alias) SQL(args *Args) string {
	return a.Expr.SQL(args) + " AS " + a.Name
}

// JSONText represents JSONB text extraction (doc->>'field').
type JSONText struct {
	Doc   Expr
	Field string
}

// SQL renders the extraction.
func (j JSONText) SQL(args *Args) string {
	return j.Doc.SQL(args) + "->>'" + j.Field + "'"
}

// JSONField represents JSONB field access (doc->'field').
type JSONField struct {
	Doc   Expr
	Field string
}

// SQL renders the access.
func (j JSONField) SQL(args *Args) string {
	return j.Doc.SQL(args) + "->'" + j.Field + "'"
}
