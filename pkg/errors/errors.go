// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Stevedore.
// Every failure surfaced by the role, fingerprint, scaffold and ledger packages
// carries an ErrorCode so callers can branch on the failure class.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies Stevedore errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeRoleNotFound indicates a role identifier could not be resolved to a path.
	CodeRoleNotFound ErrorCode = "ROLE_NOT_FOUND"

	// CodeIO indicates a file could not be read or written.
	CodeIO ErrorCode = "IO_ERROR"

	// CodeParse indicates a structured document was malformed.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodeCyclicDependency indicates a role depends on itself, directly or transitively.
	CodeCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"

	// CodeTemplate indicates a scaffold template failed to parse or render.
	CodeTemplate ErrorCode = "TEMPLATE_ERROR"

	// CodeStore indicates the fingerprint ledger failed.
	CodeStore ErrorCode = "STORE_ERROR"
)

// StevedoreError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type StevedoreError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
	// Attributes are copied onto the span that records the error.
	Attributes map[string]string
	// Recoverable marks failures a retry may clear, such as a locked ledger.
	Recoverable bool
}

// Error implements the error interface.
func (e *StevedoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *StevedoreError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *StevedoreError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Attributes:  e.Attributes,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new StevedoreError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *StevedoreError {
	return &StevedoreError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// Newf creates a StevedoreError without a cause and a formatted message.
func Newf(code ErrorCode, format string, args ...any) *StevedoreError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *StevedoreError) WithContext(key string, value interface{}) *StevedoreError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *StevedoreError) WithAttribute(key, value string) *StevedoreError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *StevedoreError) WithRecoverable(recoverable bool) *StevedoreError {
	e.Recoverable = recoverable
	return e
}

// AsStevedoreError attempts to convert an error to a StevedoreError.
// Returns the first StevedoreError in the chain, or wraps err as internal.
func AsStevedoreError(err error) *StevedoreError {
	if err == nil {
		return nil
	}
	var se *StevedoreError
	if stderrors.As(err, &se) {
		return se
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first StevedoreError in err's chain, or an
// empty code when there is none.
func CodeOf(err error) ErrorCode {
	var se *StevedoreError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var se *StevedoreError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}
