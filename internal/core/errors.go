package core

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad input (shape, size, type) before it reaches
// the queue. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// UnsupportedFormatError is raised for file extensions outside the supported
// set. Non-retryable: re-running the job cannot change the outcome.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q", e.Ext)
}

// CorruptContentError wraps a parser failure during extraction.
// Non-retryable for the same reason as UnsupportedFormatError.
type CorruptContentError struct {
	Format string
	Err    error
}

func (e *CorruptContentError) Error() string {
	return fmt.Sprintf("corrupt %s content: %v", e.Format, e.Err)
}

func (e *CorruptContentError) Unwrap() error { return e.Err }

// EmbeddingGatewayError marks a transient embedding failure (timeout, rate
// limit). The queue's retry policy decides whether to requeue.
type EmbeddingGatewayError struct {
	Err error
}

func (e *EmbeddingGatewayError) Error() string { return "embedding gateway: " + e.Err.Error() }
func (e *EmbeddingGatewayError) Unwrap() error { return e.Err }

// VectorIndexError marks a transient vector store failure. Callers must
// compensate any partially written batch before retrying.
type VectorIndexError struct {
	Err error
}

func (e *VectorIndexError) Error() string { return "vector index: " + e.Err.Error() }
func (e *VectorIndexError) Unwrap() error { return e.Err }

// NotFoundError reports an operation against a course/document/session that
// does not exist. Surfaced immediately, never retried.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// IsRetryable reports whether the failure is transient and worth feeding
// back through the queue's retry policy.
func IsRetryable(err error) bool {
	var (
		unsupported *UnsupportedFormatError
		corrupt     *CorruptContentError
		validation  *ValidationError
		notFound    *NotFoundError
	)
	if errors.As(err, &unsupported) || errors.As(err, &corrupt) ||
		errors.As(err, &validation) || errors.As(err, &notFound) {
		return false
	}
	return true
}
