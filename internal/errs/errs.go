// Package errs defines the stable error taxonomy shared by every layer of
// the ODM. Adapters, the cache, the pool, and the facade all construct
// *Error values through the helpers here so that callers can switch on Kind
// regardless of which backend produced the failure.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the stable error categories the core promises to
// surface. New kinds are added here, never invented ad hoc at call sites.
type Kind string

const (
	KindConfigError        Kind = "ConfigError"
	KindAliasNotFound       Kind = "AliasNotFound"
	KindAliasExists         Kind = "AliasExists"
	KindModelConflict       Kind = "ModelConflict"
	KindUnknownField        Kind = "UnknownField"
	KindInvalidValue        Kind = "InvalidValue"
	KindSchemaError         Kind = "SchemaError"
	KindTableNotExist       Kind = "TableNotExistError"
	KindConstraintViolation Kind = "ConstraintViolation"
	KindPoolExhausted       Kind = "PoolExhausted"
	KindQueueFull           Kind = "QueueFull"
	KindTimeout             Kind = "Timeout"
	KindCancelled           Kind = "Cancelled"
	KindTransportError      Kind = "TransportError"
	KindClockSkew           Kind = "ClockSkew"
	KindUnsupportedOperator Kind = "UnsupportedOperator"
	KindSerializationError  Kind = "SerializationError"
	KindInternal            Kind = "Internal"
)

// Error is the concrete type every core-surfaced failure wraps. Collection
// and Field are populated when known; both may be empty.
type Error struct {
	Kind       Kind
	Message    string
	Collection string
	Field      string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Collection != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (collection=%s, field=%s)", e.Kind, e.Message, e.Collection, e.Field)
	case e.Collection != "":
		return fmt.Sprintf("%s: %s (collection=%s)", e.Kind, e.Message, e.Collection)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.New(KindX, "")) to match on Kind alone,
// ignoring Message/Collection/Field/Err.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// WithCollection returns a copy of e annotated with a collection name.
func (e *Error) WithCollection(collection string) *Error {
	cp := *e
	cp.Collection = collection
	return &cp
}

// WithField returns a copy of e annotated with a field name.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// TableNotExist builds the unified TableNotExistError { collection } from
// spec.md S5: every adapter normalizes "object does not exist" to this one
// shape regardless of backend.
func TableNotExist(collection string) *Error {
	return &Error{
		Kind:       KindTableNotExist,
		Message:    "table or collection does not exist",
		Collection: collection,
	}
}

// As is a small convenience wrapper over errors.As for callers that only
// want the Kind and don't want to declare a local *errs.Error variable.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, otherwise
// KindInternal — callers that only care about classification can always
// call this without a second return value.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
