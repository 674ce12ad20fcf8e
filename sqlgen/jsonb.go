package sqlgen

// JSONB operators used by the criteria tree. Placeholders are positional
// ($N), so the jsonb ? operators need no escaping with either pgx or pq.

// JSONBHas renders doc ? $bind, true when the jsonb array or object
// contains the given string key/element.
type JSONBHas struct {
	Doc   Expr
	Value string
}

// SQL renders the containment test.
func (j JSONBHas) SQL(args *Args) string {
	return j.Doc.SQL(args) + " ? " + args.Bind(j.Value)
}

// JSONBHasAny renders doc ?| $bind, true when the jsonb array or object
// contains any element of the bound text array. Array should be a driver
// array wrapper (pq.Array) over []string.
type JSONBHasAny struct {
	Doc   Expr
	Array any
}

// SQL renders the any-of containment test.
func (j JSONBHasAny) SQL(args *Args) string {
	return j.Doc.SQL(args) + " ?| " + args.Bind(j.Array)
}
