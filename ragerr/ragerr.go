// Package ragerr defines the error taxonomy shared by every subsystem in
// ragforge: plugin validation, pipeline execution, marketplace access, and
// rate limiting all return *Error values carrying a machine-checkable Kind.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. Callers branch on Kind with errors.Is
// against the sentinel values below rather than comparing strings.
type Kind string

const (
	InvalidInput            Kind = "INVALID_INPUT"
	UnknownKind             Kind = "UNKNOWN_KIND"
	PluginNotFound          Kind = "PLUGIN_NOT_FOUND"
	ContractViolation       Kind = "CONTRACT_VIOLATION"
	LoadFailed              Kind = "LOAD_FAILED"
	ChunkingFailed          Kind = "CHUNKING_FAILED"
	EmbeddingMismatch       Kind = "EMBEDDING_MISMATCH"
	QueryEmbeddingFailed    Kind = "QUERY_EMBEDDING_FAILED"
	GenerationFailed        Kind = "GENERATION_FAILED"
	ParallelEmbeddingFailed Kind = "PARALLEL_EMBEDDING_FAILED"
	PartialEmbeddingFailure Kind = "PARTIAL_EMBEDDING_FAILURE"
	Transient               Kind = "TRANSIENT"
	IntegrityFailed         Kind = "INTEGRITY_FAILED"
	SecurityScanFailed      Kind = "SECURITY_SCAN_FAILED"
	NotCertified            Kind = "NOT_CERTIFIED"
	RateLimited             Kind = "RATE_LIMITED"
	Cancelled               Kind = "CANCELLED"
	RatingOutOfRange        Kind = "RATING_OUT_OF_RANGE"
)

// Error is the concrete error type returned across ragforge package
// boundaries. It wraps an optional underlying cause without losing the
// classification a caller needs to decide how to react.
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

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, ragerr.New(ragerr.PluginNotFound, "")) — or, more
// idiomatically, errors.Is(err, ragerr.Sentinel(ragerr.PluginNotFound)).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that preserves err as its Cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Sentinel returns a bare *Error of the given kind suitable as the target
// of errors.Is — e.g. errors.Is(err, ragerr.Sentinel(ragerr.RateLimited)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
