// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("permission denied")
	se := New(CodeIO, "read role file", cause)

	if se.Code != CodeIO {
		t.Errorf("expected CodeIO, got %v", se.Code)
	}
	if se.Message != "read role file" {
		t.Errorf("expected message 'read role file', got %q", se.Message)
	}
	if se.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(se, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	se := New(CodeRoleNotFound, "role not found", nil)
	se.WithContext("role", "web").
		WithContext("searched", []string{"/etc/ansible/roles"})

	if se.Context["role"] != "web" {
		t.Errorf("expected context role to be 'web'")
	}
	if se.Context["searched"] == nil {
		t.Errorf("expected context searched to be set")
	}
}

func TestWithAttribute(t *testing.T) {
	se := New(CodeParse, "bad yaml", nil)
	se.WithAttribute("path", "meta/main.yml")

	if se.Attributes["path"] != "meta/main.yml" {
		t.Errorf("expected attribute path")
	}
}

func TestWithRecoverable(t *testing.T) {
	se := New(CodeStore, "ledger closed", nil)
	if se.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}

	se.WithRecoverable(true)
	if !se.Recoverable {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		se       *StevedoreError
		expected string
	}{
		{
			name:     "with cause",
			se:       New(CodeIO, "read file", errors.New("short read")),
			expected: "[IO_ERROR] read file: short read",
		},
		{
			name:     "without cause",
			se:       Newf(CodeRoleNotFound, "role %q not found", "db"),
			expected: `[ROLE_NOT_FOUND] role "db" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.se.Error()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAsStevedoreError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "already StevedoreError",
			err:      New(CodeParse, "failed", nil),
			expected: CodeParse,
		},
		{
			name:     "wrapped StevedoreError",
			err:      fmt.Errorf("outer: %w", New(CodeCyclicDependency, "cycle", nil)),
			expected: CodeCyclicDependency,
		},
		{
			name:     "generic error",
			err:      errors.New("generic error"),
			expected: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := AsStevedoreError(tt.err)
			if tt.expected == "" {
				if se != nil {
					t.Errorf("expected nil for nil error")
				}
				return
			}
			if se == nil {
				t.Fatalf("expected non-nil StevedoreError")
			}
			if se.Code != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, se.Code)
			}
		})
	}
}

func TestIs(t *testing.T) {
	inner := New(CodeIO, "read", errors.New("eof"))
	outer := New(CodeParse, "decode meta", inner)

	if !Is(outer, CodeParse) {
		t.Errorf("expected outer code to match")
	}
	if !Is(outer, CodeIO) {
		t.Errorf("expected inner code to match")
	}
	if Is(outer, CodeTemplate) {
		t.Errorf("unexpected match for CodeTemplate")
	}
	if Is(errors.New("plain"), CodeInternal) {
		t.Errorf("plain errors carry no code")
	}
	if CodeOf(fmt.Errorf("wrap: %w", outer)) != CodeParse {
		t.Errorf("expected CodeOf to find the outermost code")
	}
}

func TestMarshalJSON(t *testing.T) {
	se := New(CodeCyclicDependency, "cycle detected", errors.New("a -> b -> a"))
	se.WithContext("role", "a").
		WithAttribute("depth", "2").
		WithRecoverable(false)

	data, err := json.Marshal(se)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if result["code"] != "CYCLIC_DEPENDENCY" {
		t.Errorf("expected code 'CYCLIC_DEPENDENCY', got %v", result["code"])
	}
	if result["error"] != "a -> b -> a" {
		t.Errorf("expected cause text, got %v", result["error"])
	}
	if result["recoverable"] != false {
		t.Errorf("expected recoverable false")
	}
}
