package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector length differs from the
	// dimension the store was provisioned with. It is never retryable.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrSchemaMissing is returned at open time when the memories table has not
	// been provisioned. Run "memoria migrate up" or enable database.auto_migrate.
	ErrSchemaMissing = errors.New("memory schema not provisioned")
)

// ValidationError reports caller input outside the operation contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// EmbeddingError reports that the embedding provider failed or returned an
// unusable vector. The triggering write is abandoned.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return "embedding failed: " + e.Err.Error() }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// StorageError reports a vector store failure.
// Retryable is true for connectivity problems; callers own any retry.
type StorageError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err for op. Dimension mismatches are forced non-retryable.
func NewStorageError(op string, err error, retryable bool) *StorageError {
	if errors.Is(err, ErrDimensionMismatch) {
		retryable = false
	}
	return &StorageError{Op: op, Err: err, Retryable: retryable}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEmbedding reports whether err is (or wraps) an EmbeddingError.
func IsEmbedding(err error) bool {
	var ee *EmbeddingError
	return errors.As(err, &ee)
}

// AsStorage returns the StorageError wrapped by err, if any.
func AsStorage(err error) (*StorageError, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
