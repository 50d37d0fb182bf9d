package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")

	// ErrLeaseHeld indicates an advisory lease (summarizer, feed) is already
	// held by another worker.
	ErrLeaseHeld = errors.New("lease already held")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ConflictError represents an optimistic-concurrency loss on a document
// write (§7 "Conflict"). Callers re-read, re-evaluate, and re-write,
// bounded by MaxRetries before escalating to a transient failure.
type ConflictError struct {
	Container string
	ID        string
	Expected  string
	Actual    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s/%s: expected %s, got %s", e.Container, e.ID, e.Expected, e.Actual)
}

// PolicyError represents a silent-drop decision (spam/boilerplate, age
// horizon, missing URL — §7 "Policy"). It is never surfaced above the
// component that raised it; callers record a metric and move on.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy: %s", e.Reason)
}
