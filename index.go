package turf

import (
	"cmp"
	"fmt"
)

// IndexedPropertyAny is the type-erased projection the side table stores
// one column for: a column name, its scalar kind, and an extractor from
// a value to a Scalar. The typed TypedProperty below is the front-end
// builder whose Any method erases its Go type parameter down to this
// representation, so a collection can hold a heterogeneous list of
// differently typed indexed properties.
type IndexedPropertyAny[V any] struct {
	Column   string
	Kind     ScalarKind
	Nullable bool
	extract  func(V) Scalar
}

// Project extracts this property's Scalar from a value.
func (p IndexedPropertyAny[V]) Project(v V) Scalar { return p.extract(v) }

// Index describes a secondary index over a collection: a named,
// versioned set of indexed properties backed by side table
// index_{collection}.
type Index[V any] struct {
	Name       string
	Version    uint64
	Properties []IndexedPropertyAny[V]
}

// TypedProperty is the generic front-end builder for one indexed
// property. T is the Go-level type the application extracts; Equals et
// al. only ever hand T to toScalar, so no comparable constraint is
// needed here: equality is evaluated by SQL, not by Go.
type TypedProperty[V any, T any] struct {
	erased   IndexedPropertyAny[V]
	toScalar func(T) Scalar
}

// Any erases this property to the column/kind/extractor triple the
// Index and schema manager operate on.
func (p *TypedProperty[V, T]) Any() IndexedPropertyAny[V] { return p.erased }

func newTypedProperty[V, T any](column string, kind ScalarKind, extract func(V) T, toScalar func(T) Scalar) *TypedProperty[V, T] {
	return &TypedProperty[V, T]{
		erased: IndexedPropertyAny[V]{
			Column: column,
			Kind:   kind,
			extract: func(v V) Scalar {
				return toScalar(extract(v))
			},
		},
		toScalar: toScalar,
	}
}

// Equals builds an equality predicate against this property's column.
func (p *TypedProperty[V, T]) Equals(x T) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" = ?", p.toScalar(x))
}

// NotEquals builds an inequality predicate.
func (p *TypedProperty[V, T]) NotEquals(x T) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" != ?", p.toScalar(x))
}

// IsIn builds a predicate matching any of xs. xs must be non-empty; an
// empty slice leaves the caller with no candidate values to match and
// is almost always a bug at the call site, so IsIn panics with a
// QueryInvalidPredicate error rather than silently compiling to a
// predicate that matches nothing.
func (p *TypedProperty[V, T]) IsIn(xs []T) Predicate[V] {
	if len(xs) == 0 {
		panic(NewQueryError(QueryInvalidPredicate, fmt.Sprintf("IsIn(%s): empty value list", p.erased.Column)))
	}
	sql := p.erased.Column + " IN ("
	bindings := make([]Scalar, 0, len(xs))
	for i, x := range xs {
		if i > 0 {
			sql += ", "
		}
		sql += "?"
		bindings = append(bindings, p.toScalar(x))
	}
	sql += ")"
	return simplePredicate[V](sql, bindings...)
}

// GreaterThan builds a strict ordering predicate. It is a free function,
// not a method, because Go methods cannot carry an additional
// constrained type parameter beyond the receiver's own: cmp.Ordered is
// only meaningful for numeric/text properties, not every T a
// TypedProperty might be instantiated with.
func GreaterThan[V any, T cmp.Ordered](p *TypedProperty[V, T], x T) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" > ?", p.toScalar(x))
}

func LessThan[V any, T cmp.Ordered](p *TypedProperty[V, T], x T) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" < ?", p.toScalar(x))
}

func GreaterOrEqual[V any, T cmp.Ordered](p *TypedProperty[V, T], x T) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" >= ?", p.toScalar(x))
}

func LessOrEqual[V any, T cmp.Ordered](p *TypedProperty[V, T], x T) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" <= ?", p.toScalar(x))
}

// Int64Property builds a non-nullable integer indexed property.
func Int64Property[V any](column string, extract func(V) int64) *TypedProperty[V, int64] {
	return newTypedProperty(column, KindInt64, extract, Int64Scalar)
}

// DoubleProperty builds a non-nullable floating point indexed property.
func DoubleProperty[V any](column string, extract func(V) float64) *TypedProperty[V, float64] {
	return newTypedProperty(column, KindDouble, extract, DoubleScalar)
}

// BoolProperty builds a non-nullable boolean indexed property.
func BoolProperty[V any](column string, extract func(V) bool) *TypedProperty[V, bool] {
	return newTypedProperty(column, KindBool, extract, BoolScalar)
}

// TextProperty wraps TypedProperty[V, string] with the string-only
// IsLike/IsNotLike operators, which only make sense against text
// columns.
type TextProperty[V any] struct {
	*TypedProperty[V, string]
}

func NewTextProperty[V any](column string, extract func(V) string) *TextProperty[V] {
	return &TextProperty[V]{TypedProperty: newTypedProperty(column, KindText, extract, TextScalar)}
}

func (p *TextProperty[V]) IsLike(pattern string) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" LIKE ?", TextScalar(pattern))
}

func (p *TextProperty[V]) IsNotLike(pattern string) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" NOT LIKE ?", TextScalar(pattern))
}

// BlobProperty supports only equality, since LIKE/ordering over binary
// data has no useful SQL semantics here.
type BlobProperty[V any] struct {
	erased IndexedPropertyAny[V]
}

func NewBlobProperty[V any](column string, extract func(V) []byte) *BlobProperty[V] {
	return &BlobProperty[V]{erased: IndexedPropertyAny[V]{
		Column: column,
		Kind:   KindBlob,
		extract: func(v V) Scalar {
			return BlobScalar(extract(v))
		},
	}}
}

func (p *BlobProperty[V]) Any() IndexedPropertyAny[V] { return p.erased }

func (p *BlobProperty[V]) Equals(x []byte) Predicate[V] {
	return simplePredicate[V](p.erased.Column+" = ?", BlobScalar(x))
}

// NullableProperty wraps a property whose projection may be absent.
// Equals/NotEquals/IsIn from the embedded TypedProperty still apply to
// present values; IsNil/IsNotNil are statically only available here,
// since they are only meaningful for a property that can be absent.
type NullableProperty[V any, T any] struct {
	*TypedProperty[V, T]
}

func newNullableProperty[V, T any](column string, kind ScalarKind, extract func(V) (T, bool), toScalar func(T) Scalar) *NullableProperty[V, T] {
	tp := &TypedProperty[V, T]{
		erased: IndexedPropertyAny[V]{
			Column:   column,
			Kind:     kind,
			Nullable: true,
			extract: func(v V) Scalar {
				val, ok := extract(v)
				if !ok {
					return NullScalar()
				}
				return toScalar(val)
			},
		},
		toScalar: toScalar,
	}
	return &NullableProperty[V, T]{TypedProperty: tp}
}

func NullableInt64Property[V any](column string, extract func(V) (int64, bool)) *NullableProperty[V, int64] {
	return newNullableProperty(column, KindInt64, extract, Int64Scalar)
}

func NullableDoubleProperty[V any](column string, extract func(V) (float64, bool)) *NullableProperty[V, float64] {
	return newNullableProperty(column, KindDouble, extract, DoubleScalar)
}

func NullableTextProperty[V any](column string, extract func(V) (string, bool)) *NullableProperty[V, string] {
	return newNullableProperty(column, KindText, extract, TextScalar)
}

func NullableBoolProperty[V any](column string, extract func(V) (bool, bool)) *NullableProperty[V, bool] {
	return newNullableProperty(column, KindBool, extract, BoolScalar)
}

func (p *NullableProperty[V, T]) IsNil() Predicate[V] {
	return simplePredicate[V](p.erased.Column + " IS NULL")
}

func (p *NullableProperty[V, T]) IsNotNil() Predicate[V] {
	return simplePredicate[V](p.erased.Column + " IS NOT NULL")
}
