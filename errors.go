package turf

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// StorageErrorKind classifies a failure surfaced by the SQL access layer.
type StorageErrorKind int

const (
	StorageIO StorageErrorKind = iota
	StorageCorruption
	StorageConstraint
)

func (k StorageErrorKind) String() string {
	switch k {
	case StorageIO:
		return "io"
	case StorageCorruption:
		return "corruption"
	case StorageConstraint:
		return "constraint"
	default:
		return "unknown"
	}
}

// StorageError wraps a failure from the embedded relational engine. It
// always aborts the containing transaction.
type StorageError struct {
	Kind StorageErrorKind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("turf: storage error during %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func newStorageError(kind StorageErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: kind, Op: op, Err: err}
}

// RegistrationErrorKind classifies a failure raised while registering
// collections or extensions with a Database.
type RegistrationErrorKind int

const (
	DuplicateCollection RegistrationErrorKind = iota
	DuplicateExtension
	UnknownCollection
)

// RegistrationError is raised by RegisterCollection when a collection or
// extension cannot be registered, and by CollectionHandle.In/InWrite when
// the handle names a collection the database does not know.
type RegistrationError struct {
	Kind RegistrationErrorKind
	Name string
}

func (e *RegistrationError) Error() string {
	switch e.Kind {
	case DuplicateCollection:
		return fmt.Sprintf("turf: collection %q already registered", e.Name)
	case DuplicateExtension:
		return fmt.Sprintf("turf: extension %q already registered", e.Name)
	case UnknownCollection:
		return fmt.Sprintf("turf: unknown collection %q", e.Name)
	default:
		return fmt.Sprintf("turf: registration error for %q", e.Name)
	}
}

// MigrationRequiredError is surfaced at Database open when a collection's
// stored schema version differs from its declared schema version. Turf
// does not perform migrations itself; the caller decides how to proceed.
type MigrationRequiredError struct {
	Name string
	From uint64
	To   uint64
}

func (e *MigrationRequiredError) Error() string {
	return fmt.Sprintf("turf: collection %q requires migration from schema %d to %d", e.Name, e.From, e.To)
}

// SerializationError wraps a failure from a collection's Serialize hook.
// It always aborts the write transaction that produced it.
type SerializationError struct {
	Collection string
	Key        string
	Err        error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("turf: serialize %s/%s: %v", e.Collection, e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError records a collection's Deserialize hook returning
// false for a stored row. No read path constructs it: Value, AllValues
// and FindValues treat such a row as "value not found".
type DeserializationError struct {
	Collection string
	Key        string
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("turf: deserialize %s/%s: value absent", e.Collection, e.Key)
}

// QueryErrorKind classifies a predicate/query construction-time failure.
type QueryErrorKind int

const (
	QueryTypeMismatch QueryErrorKind = iota
	QueryInvalidPredicate
)

// NewQueryError builds a construction-time query error carrying a stack
// trace via github.com/pkg/errors, for user-facing construction
// failures.
func NewQueryError(kind QueryErrorKind, msg string) error {
	return pkgerrors.WithStack(&QueryError{Kind: kind, Msg: msg})
}

type QueryError struct {
	Kind QueryErrorKind
	Msg  string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("turf: query error: %s", e.Msg)
}

// ErrDisposed is returned by CollectionHandle.In/InWrite when a
// transaction is used after its body has returned. Observers and
// Disposables never return it; a repeated Dispose is a silent no-op.
var ErrDisposed = fmt.Errorf("turf: use after dispose")
