package types

import "fmt"

// Kind is the error taxonomy from spec §7. Every error the backend
// surfaces to a caller or persists on a Transaction row carries one of
// these kinds so the RPC layer can map it to a UI-visible state without
// string-sniffing.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindInsufficientLiq    Kind = "InsufficientLiquidity"
	KindStalePrice         Kind = "StalePrice"
	KindNoPriceData        Kind = "NoPriceData"
	KindBadNonce           Kind = "BadNonce"
	KindBadNoncePersist    Kind = "BadNoncePersistence"
	KindChainRejected      Kind = "ChainRejected"
	KindChainFailed        Kind = "ChainFailed"
	KindStale              Kind = "Stale"
	KindReconciliation     Kind = "Reconciliation"
	KindConfig             Kind = "ConfigError"
)

// Error wraps a Kind with a human-readable message and optional cause.
// It replaces exception-based control flow: every fallible operation in
// this module returns (T, error) and callers switch on Kind, not on
// message text.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from an error if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if err == nil {
		return "", false
	}
	if as, ok := err.(*Error); ok {
		e = as
	} else if u, ok := err.(interface{ Unwrap() error }); ok {
		return KindOf(u.Unwrap())
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}

// IsFatalConfig reports whether err represents a fatal startup config
// error (the only error kind that should crash the process).
func IsFatalConfig(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConfig
}
