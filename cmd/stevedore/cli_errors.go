// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/jllopis/stevedore/pkg/errors"
)

// CLIError wraps StevedoreError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.StevedoreError
	Hint string
	// Usage marks errors caused by how the command was invoked.
	Usage bool
}

// NewCLIError creates a new CLI error.
func NewCLIError(se *errors.StevedoreError, hint string) *CLIError {
	return &CLIError{
		StevedoreError: se,
		Hint:           hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.StevedoreError == nil {
		return "unknown error"
	}

	msg := e.StevedoreError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the wrapped StevedoreError to errors.As.
func (e *CLIError) Unwrap() error {
	if e.StevedoreError == nil {
		return nil
	}
	return e.StevedoreError
}

type errorPayload struct {
	Error *errors.StevedoreError `json:"error"`
	Hint  string                 `json:"hint,omitempty"`
}

// Print writes the error to w as text or as a JSON object.
func (e *CLIError) Print(w io.Writer, asJSON bool) {
	se := e.StevedoreError
	if se == nil {
		se = errors.New(errors.CodeInternal, "unknown error", nil)
	}
	if asJSON {
		_ = json.NewEncoder(w).Encode(errorPayload{Error: se, Hint: e.Hint})
		return
	}

	fmt.Fprintf(w, "Error: %s [%s]: %s\n", FormatErrorCode(se.Code), se.Code, se.Message)
	if se.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", se.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
	if se.Recoverable {
		fmt.Fprintln(w, "  The failure may be transient; retrying can succeed.")
	}
}

// NewInvalidArgumentError creates a usage error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	se := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg)
	e := NewCLIError(se, "run 'stevedore help' for usage information")
	e.Usage = true
	return e
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	se := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(se, hint)
}

// WrapError attaches a hint matching the error code of err.
func WrapError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	se := errors.AsStevedoreError(err)
	return NewCLIError(se, hintFor(se.Code))
}

func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeRoleNotFound:
		return "check the role name or add its parent directory with --roles-path"
	case errors.CodeCyclicDependency:
		return "remove one of the dependencies listed in meta/main.yml to break the cycle"
	case errors.CodeParse:
		return "check the YAML syntax of the reported file"
	case errors.CodeTemplate:
		return "check the role templates for syntax errors or unknown fields"
	case errors.CodeStore:
		return "check ledger.dsn and that the ledger file is writable"
	case errors.CodeNotFound:
		return "check the path exists"
	case errors.CodeIO:
		return "check the file exists and is readable"
	default:
		return ""
	}
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeRoleNotFound:
		return "Role Not Found"
	case errors.CodeIO:
		return "I/O Error"
	case errors.CodeParse:
		return "Parse Error"
	case errors.CodeCyclicDependency:
		return "Cyclic Dependency"
	case errors.CodeTemplate:
		return "Template Error"
	case errors.CodeStore:
		return "Ledger Error"
	default:
		return string(code)
	}
}

func (c *cli) printError(err error) {
	WrapError(err).Print(c.stderr, c.json)
}
