package quickdb

import "github.com/quickdb/quickdb/internal/errs"

// Kind identifies one of the stable error categories the core promises to
// surface (spec.md §7). Re-exported so callers never import internal/errs
// directly.
type Kind = errs.Kind

const (
	KindConfigError        = errs.KindConfigError
	KindAliasNotFound       = errs.KindAliasNotFound
	KindAliasExists         = errs.KindAliasExists
	KindModelConflict       = errs.KindModelConflict
	KindUnknownField        = errs.KindUnknownField
	KindInvalidValue        = errs.KindInvalidValue
	KindSchemaError         = errs.KindSchemaError
	KindTableNotExist       = errs.KindTableNotExist
	KindConstraintViolation = errs.KindConstraintViolation
	KindPoolExhausted       = errs.KindPoolExhausted
	KindQueueFull           = errs.KindQueueFull
	KindTimeout             = errs.KindTimeout
	KindCancelled           = errs.KindCancelled
	KindTransportError      = errs.KindTransportError
	KindClockSkew           = errs.KindClockSkew
	KindUnsupportedOperator = errs.KindUnsupportedOperator
	KindSerializationError  = errs.KindSerializationError
	KindInternal            = errs.KindInternal
)

// Error is the concrete error type every quickdb-surfaced failure wraps.
type Error = errs.Error

// AsError extracts the *Error from err, if err is or wraps one, so callers
// can switch on Kind without importing internal/errs.
func AsError(err error) (*Error, bool) {
	return errs.As(err)
}

// KindOf returns the Kind of err, or KindInternal if err is not a quickdb
// *Error.
func KindOf(err error) Kind {
	return errs.KindOf(err)
}
