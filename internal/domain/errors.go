package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures into the categories callers act on.
type ErrorKind string

const (
	// KindInvalidInput marks malformed caller input. Never retried.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindInvalidConfiguration marks out-of-range component configuration.
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
	// KindDimensionMismatch marks configuration drift between the embedder
	// and the vector index. Fatal, never retried, never auto-corrected.
	KindDimensionMismatch ErrorKind = "dimension_mismatch"
	// KindEmbeddingUnavailable marks a transient embedding backend failure.
	KindEmbeddingUnavailable ErrorKind = "embedding_backend_unavailable"
	// KindIndexUnavailable marks a transient vector index failure.
	KindIndexUnavailable ErrorKind = "index_unavailable"
	// KindGenerationUnavailable marks a transient language-model failure.
	KindGenerationUnavailable ErrorKind = "generation_backend_unavailable"
	// KindInternal is the fallback for everything else.
	KindInternal ErrorKind = "internal"
)

// Error is the structured error surfaced to callers. Message is safe to show
// to users; the wrapped cause is for logs only and never leaks across the API
// boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// E creates a new classified error.
func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error. A nil cause yields nil.
func Wrap(kind ErrorKind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the classification of err, or KindInternal if unclassified.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindEmbeddingUnavailable, KindIndexUnavailable, KindGenerationUnavailable:
		return true
	}
	return false
}
