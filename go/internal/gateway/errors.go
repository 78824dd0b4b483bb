package gateway

import "fmt"

// ValidationError marks input outside accepted bounds. It is replied to the
// sender only; no state changes and nothing is broadcast.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PermissionError marks a non-admin attempting an admin-only operation.
// Sender-only reply, no state change.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

// PersistenceError wraps a storage failure. The triggering operation has
// been rolled back and in-memory state is untouched, so a retry is safe.
// No other client ever learns that the operation failed.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
