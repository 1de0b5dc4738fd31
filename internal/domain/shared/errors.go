// Package shared contains error kinds and events used across the domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Base error kinds. Callers classify with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "person", "friends", "email"
	Op      string // operation that failed, e.g. "Create", "AddFriend"
	Kind    error  // base kind for errors.Is
	Message string // human-readable message, safe to show to API callers
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches either the kind or the wrapped error.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// NotFound builds an ErrNotFound domain error.
func NotFound(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict builds an ErrConflict domain error.
func Conflict(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrConflict, fmt.Sprintf(format, args...))
}

// Validation builds an ErrValidation domain error.
func Validation(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// ══════════════════════════════════════════════════════════════════════════════
// EMAIL CONFLICTS
// ══════════════════════════════════════════════════════════════════════════════

// EmailConflictError reports every requested address that another person already owns.
type EmailConflictError struct {
	Addresses []string
}

func (e *EmailConflictError) Error() string {
	return "email addresses already exist: " + strings.Join(e.Addresses, ", ")
}

// Is makes EmailConflictError match ErrConflict.
func (e *EmailConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDICATES
// ══════════════════════════════════════════════════════════════════════════════

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidInput)
}

// PublicMessage returns the message meant for API callers.
func PublicMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	var ec *EmailConflictError
	if errors.As(err, &ec) {
		return ec.Error()
	}
	return err.Error()
}
