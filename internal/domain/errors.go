package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors; typed errors below wrap them so callers can use errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnrecognizedTyping = errors.New("unrecognized HLA typing")
	ErrLookupNotFound     = errors.New("HLA lookup not found")
	ErrVersionNotReady    = errors.New("nomenclature version not ready")
	ErrNoActiveVersion    = errors.New("no active nomenclature version")
)

// UnrecognizedTypingError is returned when a typing string matches no classification rule.
type UnrecognizedTypingError struct {
	Name string `json:"name"`
}

// Error implements the error interface
func (e *UnrecognizedTypingError) Error() string {
	return fmt.Sprintf("unrecognized HLA typing %q", e.Name)
}

// Unwrap allows errors.Is(err, ErrUnrecognizedTyping).
func (e *UnrecognizedTypingError) Unwrap() error {
	return ErrUnrecognizedTyping
}

// LookupNotFoundError is returned when a typing is absent from a nomenclature version
// after every fallback has been tried.
type LookupNotFoundError struct {
	Locus   Locus        `json:"locus"`
	Name    string       `json:"name"`
	Method  TypingMethod `json:"method"`
	Version string       `json:"version"`
}

// Error implements the error interface
func (e *LookupNotFoundError) Error() string {
	return fmt.Sprintf("no %s metadata for %s*%s in nomenclature version %s", e.Method, e.Locus, e.Name, e.Version)
}

// Unwrap allows errors.Is(err, ErrLookupNotFound).
func (e *LookupNotFoundError) Unwrap() error {
	return ErrLookupNotFound
}

// NewLookupNotFoundError creates a new LookupNotFoundError
func NewLookupNotFoundError(locus Locus, name string, method TypingMethod, version string) *LookupNotFoundError {
	return &LookupNotFoundError{
		Locus:   locus,
		Name:    name,
		Method:  method,
		Version: version,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
