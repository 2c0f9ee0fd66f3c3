// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger keeps the history of role fingerprints so a build can tell
// whether a role changed since its image was last produced.
package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/stevedore/pkg/errors"
	"github.com/jllopis/stevedore/pkg/fingerprint"
)

// Entry is one recorded fingerprint.
type Entry struct {
	ID         uuid.UUID             `json:"id"`
	Role       string                `json:"role"`
	Path       string                `json:"path"`
	Digest     string                `json:"digest"`
	Algorithm  fingerprint.Algorithm `json:"algorithm"`
	Roles      []string              `json:"roles,omitempty"`
	Files      int                   `json:"files"`
	Bytes      int64                 `json:"bytes"`
	RecordedAt time.Time             `json:"recorded_at"`
}

// Filter limits List queries.
type Filter struct {
	Role  string
	Limit int
}

// Store persists fingerprint entries.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	// Latest returns the most recent entry for role; ok is false when the
	// role has never been recorded.
	Latest(ctx context.Context, role string) (entry Entry, ok bool, err error)
	// List returns matching entries, newest first.
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// NewEntry builds an entry from a fingerprint result, stamped now.
func NewEntry(res *fingerprint.Result) Entry {
	return Entry{
		ID:         uuid.New(),
		Role:       res.Role,
		Path:       res.Path,
		Digest:     res.Digest,
		Algorithm:  res.Algorithm,
		Roles:      append([]string(nil), res.Roles...),
		Files:      res.Files,
		Bytes:      res.Bytes,
		RecordedAt: time.Now().UTC(),
	}
}

// Changed reports whether res differs from the last entry recorded for the
// same role. A role with no history, or one last recorded with another
// algorithm, counts as changed.
func Changed(ctx context.Context, store Store, res *fingerprint.Result) (bool, error) {
	last, ok, err := store.Latest(ctx, res.Role)
	if err != nil {
		return false, err
	}
	if !ok || last.Algorithm != res.Algorithm {
		return true, nil
	}
	return !strings.EqualFold(last.Digest, res.Digest), nil
}

// MemoryStore keeps entries in memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an entry.
func (s *MemoryStore) Record(_ context.Context, entry Entry) error {
	if err := validate(entry); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Latest returns the last entry recorded for role.
func (s *MemoryStore) Latest(_ context.Context, role string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Role == role {
			return s.entries[i], true, nil
		}
	}
	return Entry{}, false, nil
}

// List returns filtered entries, newest first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if filter.Role != "" && entry.Role != filter.Role {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func validate(entry Entry) error {
	if entry.Role == "" {
		return errors.New(errors.CodeInvalidInput, "ledger entry has no role", nil)
	}
	if entry.Digest == "" {
		return errors.New(errors.CodeInvalidInput, "ledger entry has no digest", nil).
			WithContext("role", entry.Role)
	}
	return nil
}

func encodeRoles(roles []string) (string, error) {
	if len(roles) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(roles)
	return string(raw), err
}

func decodeRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil || len(roles) == 0 {
		return nil
	}
	return roles
}
