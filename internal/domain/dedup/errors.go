package dedup

import (
	"errors"
	"fmt"
)

// ValidationError marks a rejected input (missing mandatory fields, malformed
// merge decisions, unknown resolution verbs).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a lookup miss for a named resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError marks an operation rejected because the target is in a state
// that does not admit it, such as resolving an already-adjudicated candidate.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func conflictf(format string, args ...interface{}) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// MergeFailure wraps an error raised inside the merge unit of work and names
// the step that failed. The transaction is rolled back, so the failure is
// reportable without any partial migration.
type MergeFailure struct {
	Step string
	Err  error
}

func (e *MergeFailure) Error() string {
	return fmt.Sprintf("merge failed at %s: %v", e.Step, e.Err)
}

func (e *MergeFailure) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
