package turf

import "fmt"

// ScalarKind tags the runtime type carried by a Scalar. It mirrors the
// typed scalar set the SQL access layer exposes over the embedded
// relational engine.
type ScalarKind int

const (
	KindNull ScalarKind = iota
	KindInt64
	KindDouble
	KindText
	KindBlob
	KindBool
)

func (k ScalarKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// sqliteColumnType returns the SQLite column affinity for a scalar
// kind: INTEGER for Bool/Int, REAL for Double, TEXT for String, BLOB
// for Blob.
func (k ScalarKind) sqliteColumnType() string {
	switch k {
	case KindInt64, KindBool:
		return "INTEGER"
	case KindDouble:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	default:
		return "NULL"
	}
}

// Scalar is a tagged union over the scalar values the SQL access layer
// can bind or return. Bool is represented and bound as Int64.
type Scalar struct {
	Kind    ScalarKind
	Int64   int64
	Float64 float64
	Text    string
	Blob    []byte
}

// NullScalar constructs a Scalar representing SQL NULL.
func NullScalar() Scalar { return Scalar{Kind: KindNull} }

// Int64Scalar constructs an integer Scalar.
func Int64Scalar(v int64) Scalar { return Scalar{Kind: KindInt64, Int64: v} }

// DoubleScalar constructs a floating point Scalar.
func DoubleScalar(v float64) Scalar { return Scalar{Kind: KindDouble, Float64: v} }

// TextScalar constructs a text Scalar.
func TextScalar(v string) Scalar { return Scalar{Kind: KindText, Text: v} }

// BlobScalar constructs a blob Scalar.
func BlobScalar(v []byte) Scalar { return Scalar{Kind: KindBlob, Blob: v} }

// BoolScalar constructs a boolean Scalar, bound over the wire as Int64.
func BoolScalar(v bool) Scalar {
	if v {
		return Scalar{Kind: KindBool, Int64: 1}
	}
	return Scalar{Kind: KindBool, Int64: 0}
}

// bindValue converts a Scalar into the value database/sql expects when
// binding a prepared statement parameter.
func (s Scalar) bindValue() any {
	switch s.Kind {
	case KindNull:
		return nil
	case KindInt64, KindBool:
		return s.Int64
	case KindDouble:
		return s.Float64
	case KindText:
		return s.Text
	case KindBlob:
		return s.Blob
	default:
		return nil
	}
}

func (s Scalar) String() string {
	switch s.Kind {
	case KindNull:
		return "NULL"
	case KindInt64:
		return fmt.Sprintf("%d", s.Int64)
	case KindDouble:
		return fmt.Sprintf("%g", s.Float64)
	case KindText:
		return fmt.Sprintf("%q", s.Text)
	case KindBlob:
		return fmt.Sprintf("blob(%d bytes)", len(s.Blob))
	case KindBool:
		return fmt.Sprintf("%t", s.Int64 != 0)
	default:
		return "?"
	}
}
