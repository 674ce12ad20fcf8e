package sqlgen

import (
	"fmt"
	"strings"
)

// JoinClause represents a join attached to a SELECT.
type JoinClause struct {
	Type    string // "LEFT", "INNER", ...
	Lateral bool
	Table   string     // plain relation name; empty when Sub is set
	Sub     *SelectStmt // subquery join (rendered parenthesised)
	Alias   string
	On      Expr // nil with Lateral renders ON TRUE
}

// SQL renders the join clause.
func (j JoinClause) SQL(args *Args) string {
	var b strings.Builder
	b.WriteString(j.Type)
	b.WriteString(" JOIN ")
	if j.Lateral {
		b.WriteString("LATERAL ")
	}
	if j.Sub != nil {
		b.WriteString("(")
		b.WriteString(j.Sub.SQL(args))
		b.WriteString(")")
	} else {
		b.WriteString(j.Table)
	}
	if j.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(j.Alias)
	}
	if j.On != nil {
		b.WriteString(" ON ")
		b.WriteString(j.On.SQL(args))
	} else if j.Lateral {
		b.WriteString(" ON TRUE")
	}
	return b.String()
}

// OrderKey is one ORDER BY entry.
type OrderKey struct {
	Expr      Expr
	Desc      bool
	NullsLast bool
}

// SQL renders the order key.
func (o OrderKey) SQL(args *Args) string {
	s := o.Expr.SQL(args)
	if o.Desc {
		s += " DESC"
	}
	if o.NullsLast {
		s += " NULLS LAST"
	}
	return s
}

// SelectStmt represents a SELECT query.
type SelectStmt struct {
	Columns []Expr
	From    string
	Alias   string
	Joins   []JoinClause
	Where   Expr
	OrderBy []OrderKey
	Limit   int
	Offset  int
}

// SQL renders the SELECT statement, collecting bind values into args.
func (s SelectStmt) SQL(args *Args) string {
	var parts []string

	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c.SQL(args)
	}
	if len(cols) == 0 {
		cols = []string{"1"}
	}
	parts = append(parts, "SELECT "+strings.Join(cols, ", "))

	if s.From != "" {
		from := "FROM " + s.From
		if s.Alias != "" {
			from += " AS " + s.Alias
		}
		parts = append(parts, from)
	}

	for _, j := range s.Joins {
		parts = append(parts, j.SQL(args))
	}

	if s.Where != nil {
		parts = append(parts, "WHERE "+s.Where.SQL(args))
	}

	if len(s.OrderBy) > 0 {
		keys := make([]string, len(s.OrderBy))
		for i, k := range s.OrderBy {
			keys[i] = k.SQL(args)
		}
		parts = append(parts, "ORDER BY "+strings.Join(keys, ", "))
	}

	if s.Limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", s.Limit))
	}
	if s.Offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", s.Offset))
	}

	return strings.Join(parts, "\n")
}

// Build renders the statement and returns the SQL text with its bind values.
func (s SelectStmt) Build() (string, []any) {
	var args Args
	sql := s.SQL(&args)
	return sql, args.Values()
}
