package turf

import "fmt"

// Predicate is a compiled node in the typed predicate algebra. It
// carries its SQL fragment (referencing index side-table column names)
// plus an ordered list of bound scalars. V pins the predicate to one
// collection's value type so it cannot be applied against the wrong
// collection's index.
type Predicate[V any] struct {
	sql      string
	bindings []Scalar
}

// SQL returns the compiled WHERE-clause fragment and its positional
// bindings, consumed by the index query surface.
func (p Predicate[V]) SQL() (string, []Scalar) { return p.sql, p.bindings }

// And combines two predicates with SQL AND.
func (p Predicate[V]) And(other Predicate[V]) Predicate[V] {
	return Predicate[V]{
		sql:      fmt.Sprintf("(%s AND %s)", p.sql, other.sql),
		bindings: append(append([]Scalar{}, p.bindings...), other.bindings...),
	}
}

// Or combines two predicates with SQL OR.
func (p Predicate[V]) Or(other Predicate[V]) Predicate[V] {
	return Predicate[V]{
		sql:      fmt.Sprintf("(%s OR %s)", p.sql, other.sql),
		bindings: append(append([]Scalar{}, p.bindings...), other.bindings...),
	}
}

// Not negates a predicate.
func (p Predicate[V]) Not() Predicate[V] {
	return Predicate[V]{sql: fmt.Sprintf("NOT (%s)", p.sql), bindings: append([]Scalar{}, p.bindings...)}
}

func simplePredicate[V any](sql string, bindings ...Scalar) Predicate[V] {
	return Predicate[V]{sql: sql, bindings: bindings}
}
