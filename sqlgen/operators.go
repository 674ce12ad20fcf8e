package sqlgen

import "strings"

// Comparison operators

// Eq represents an equality comparison (=).
type Eq struct {
	Left  Expr
	Right Expr
}

// SQL renders the equality comparison.
func (e Eq) SQL(args *Args) string {
	return e.Left.SQL(args) + " = " + e.Right.SQL(args)
}

// Ne represents a not-equal comparison (<>).
type Ne struct {
	Left  Expr
	Right Expr
}

// SQL renders the not-equal comparison.
func (n Ne) SQL(args *Args) string {
	return n.Left.SQL(args) + " <> " + n.Right.SQL(args)
}

// In represents an IN clause over bound string values.
type In struct {
	Expr   Expr
	Values []string
}

// SQL renders the IN clause. An empty value list renders FALSE so that an
// impossible filter narrows the result set instead of erroring.
func (i In) SQL(args *Args) string {
	if len(i.Values) == 0 {
		return "FALSE"
	}
	bound := make([]string, len(i.Values))
	for j, v := range i.Values {
		bound[j] = args.Bind(v)
	}
	return i.Expr.SQL(args) + " IN (" + strings.Join(bound, ", ") + ")"
}

// EqAny represents expr = ANY(array-bind). Used for membership tests against
// caller entitlements (regions, site ids) bound as a single array parameter.
type EqAny struct {
	Expr  Expr
	Array any
}

// SQL renders the ANY comparison.
func (e EqAny) SQL(args *Args) string {
	return e.Expr.SQL(args) + " = ANY(" + args.Bind(e.Array) + ")"
}

// ArrayOverlap represents the && array overlap operator.
type ArrayOverlap struct {
	Left  Expr
	Right Expr
}

// SQL renders the overlap test.
func (a ArrayOverlap) SQL(args *Args) string {
	return a.Left.SQL(args) + " && " + a.Right.SQL(args)
}

// PrefixILike represents a case-insensitive prefix match. The bound pattern
// is the escaped prefix followed by %.
type PrefixILike struct {
	Expr   Expr
	Prefix string
}

// SQL renders the ILIKE comparison.
func (p PrefixILike) SQL(args *Args) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(p.Prefix)
	return p.Expr.SQL(args) + " ILIKE " + args.Bind(escaped+"%")
}

// ContainsLike represents a case-sensitive substring match (LIKE %needle%).
type ContainsLike struct {
	Expr   Expr
	Needle string
}

// SQL renders the LIKE comparison.
func (c ContainsLike) SQL(args *Args) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(c.Needle)
	return c.Expr.SQL(args) + " LIKE " + args.Bind("%"+escaped+"%")
}

// Logical operators

// AndExpr represents a logical AND of multiple expressions.
type AndExpr struct {
	Exprs []Expr
}

// SQL renders the AND expression.
func (a AndExpr) SQL(args *Args) string {
	if len(a.Exprs) == 0 {
		return "TRUE"
	}
	if len(a.Exprs) == 1 {
		return a.Exprs[0].SQL(args)
	}
	parts := make([]string, len(a.Exprs))
	for i, e := range a.Exprs {
		parts[i] = e.SQL(args)
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// And creates an AND expression, dropping nil operands.
func And(exprs ...Expr) AndExpr {
	filtered := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	return AndExpr{Exprs: filtered}
}

// OrExpr represents a logical OR of multiple expressions.
type OrExpr struct {
	Exprs []Expr
}

// SQL renders the OR expression.
func (o OrExpr) SQL(args *Args) string {
	if len(o.Exprs) == 0 {
		return "FALSE"
	}
	if len(o.Exprs) == 1 {
		return o.Exprs[0].SQL(args)
	}
	parts := make([]string, len(o.Exprs))
	for i, e := range o.Exprs {
		parts[i] = e.SQL(args)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// Or creates an OR expression, dropping nil operands.
func Or(exprs ...Expr) OrExpr {
	filtered := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	return OrExpr{Exprs: filtered}
}

// NotExpr represents a logical NOT of an expression.
type NotExpr struct {
	Expr Expr
}

// SQL renders the NOT expression.
func (n NotExpr) SQL(args *Args) string {
	return "NOT (" + n.Expr.SQL(args) + ")"
}

// Not creates a NOT expression.
func Not(expr Expr) NotExpr {
	return NotExpr{Expr: expr}
}

// Exists represents an EXISTS subquery.
type Exists struct {
	Query SelectStmt
}

// SQL renders the EXISTS expression.
func (e Exists) SQL(args *Args) string {
	return "EXISTS (" + e.Query.SQL(args) + ")"
}

// NotExists represents a NOT EXISTS subquery.
type NotExists struct {
	Query SelectStmt
}

// SQL renders the NOT EXISTS expression.
func (n NotExists) SQL(args *Args) string {
	return "NOT EXISTS (" + n.Query.SQL(args) + ")"
}

// IsNull represents an IS NULL check.
type IsNull struct {
	Expr Expr
}

// SQL renders the IS NULL expression.
func (i IsNull) SQL(args *Args) string {
	return i.Expr.SQL(args) + " IS NULL"
}

// IsNotNull represents an IS NOT NULL check.
type IsNotNull struct {
	Expr Expr
}

// SQL renders the IS NOT NULL expression.
func (i IsNotNull) SQL(args *Args) string {
	return i.Expr.SQL(args) + " IS NOT NULL"
}

// IsTrue represents an IS TRUE check. Distinct from = TRUE so that NULL
// (absent flag) never satisfies the predicate.
type IsTrue struct {
	Expr Expr
}

// SQL renders the IS TRUE expression.
func (i IsTrue) SQL(args *Args) string {
	return "(" + i.Expr.SQL(args) + ") IS TRUE"
}
