package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a core error so callers can branch on it with
// errors.As instead of string matching.
type ErrorKind string

const (
	ErrPathRejected            ErrorKind = "PathRejected"
	ErrParseUnsupported        ErrorKind = "ParseUnsupported"
	ErrProviderRateLimited     ErrorKind = "ProviderRateLimited"
	ErrProviderTransient       ErrorKind = "ProviderTransient"
	ErrProviderAuth            ErrorKind = "ProviderAuth"
	ErrProviderInvalid         ErrorKind = "ProviderInvalid"
	ErrProviderNetwork         ErrorKind = "ProviderNetwork"
	ErrStoreSchemaMismatch     ErrorKind = "StoreSchemaMismatch"
	ErrManifestCorrupt         ErrorKind = "ManifestCorrupt"
	ErrManifestVersionMismatch ErrorKind = "ManifestVersionMismatch"
	ErrCancelled               ErrorKind = "Cancelled"
)

// Retriable reports whether an error of this kind should be retried by the
// batch pipeline: only rate limits and transient auth hiccups are.
func (k ErrorKind) Retriable() bool {
	return k == ErrProviderRateLimited || k == ErrProviderTransient
}

// CoreError wraps an underlying error with a classified kind plus an
// optional reason string.
type CoreError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *CoreError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Err }

// NewError builds a CoreError of the given kind.
func NewError(kind ErrorKind, reason string, cause error) *CoreError {
	return &CoreError{Kind: kind, Reason: reason, Err: cause}
}

// KindOf extracts the ErrorKind from err, if it (or something it wraps) is
// a *CoreError. The second return is false for plain errors.
func KindOf(err error) (ErrorKind, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
