package domain

import (
	"errors"
	"fmt"
)

// Causes of a ConfigurationError
var (
	ErrConflictingDirectives = errors.New("conflicting store directives")
	ErrNoMatchingStatement   = errors.New("no conditional statement matched")
	ErrMissingStatement      = errors.New("missing statement")
	ErrMissingReturn         = errors.New("missing return binding")
	ErrInvalidTraversal      = errors.New("invalid traversal")
	ErrDetachedPlan          = errors.New("plan has no parent binding")
	ErrMalformedText         = errors.New("malformed statement text")
	ErrNestedWrite           = errors.New("write clauses below a root field")
)

// Causes of a CompilationError
var (
	ErrPlaceholderMismatch = errors.New("placeholder and parameter keys differ")
	ErrKeyCollision        = errors.New("namespaced key collision")
	ErrBatchWrite          = errors.New("write statements cannot be batched")
)

// ConfigurationError reports a schema directive that cannot be compiled.
// It is raised before any store access.
type ConfigurationError struct {
	Type   string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error on %s.%s: %v: %s", e.Type, e.Field, e.Err, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError builds a ConfigurationError with a formatted reason
func NewConfigurationError(typeName, field string, cause error, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Type:   typeName,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
		Err:    cause,
	}
}

// CompilationError reports an internal invariant violation while compiling a root field
type CompilationError struct {
	Root   string
	Reason string
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation error in %s: %v: %s", e.Root, e.Err, e.Reason)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// ExecutionError wraps a failure reported by the graph store. The store's error is kept untouched.
type ExecutionError struct {
	Field string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to execute %s: %v", e.Field, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
