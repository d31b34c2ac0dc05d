package mediahaven

import "strings"

// Clause is a single field:value condition.
type Clause struct {
	Field string
	Value string
}

// Query is a conjunction of clauses, rendered in insertion order.
type Query []Clause

// Where starts a query.
func Where(field, value string) Query {
	return Query{{Field: field, Value: value}}
}

// And appends a clause.
func (q Query) And(field, value string) Query {
	out := make(Query, len(q), len(q)+1)
	copy(out, q)
	return append(out, Clause{Field: field, Value: value})
}

// String renders +(field:"value") clauses separated by spaces.
func (q Query) String() string {
	parts := make([]string, 0, len(q))
	for _, c := range q {
		v := strings.ReplaceAll(c.Value, `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		parts = append(parts, `+(`+c.Field+`:"`+v+`")`)
	}
	return strings.Join(parts, " ")
}

// Pairs returns the clauses as alternating key/value strings for logging.
func (q Query) Pairs() []string {
	out := make([]string, 0, 2*len(q))
	for _, c := range q {
		out = append(out, c.Field, c.Value)
	}
	return out
}
