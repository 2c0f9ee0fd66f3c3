// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jllopis/stevedore/pkg/errors"
	"github.com/jllopis/stevedore/pkg/fingerprint"
)

// SQLiteStore persists entries in SQLite.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteStore wraps an open database and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureSchema(db); err != nil {
		return nil, storeError("create ledger schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Open opens (creating if needed) the ledger at dsn. A plain file path gets
// its parent directory created.
func Open(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New(errors.CodeInvalidInput, "ledger dsn is empty", nil)
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errors.New(errors.CodeIO, "create ledger directory", err).WithContext("dsn", dsn)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError("open ledger", err).WithContext("dsn", dsn)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// Close closes the database if Open created it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Record stores a single entry.
func (s *SQLiteStore) Record(ctx context.Context, entry Entry) error {
	if err := validate(entry); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	roles, err := encodeRoles(entry.Roles)
	if err != nil {
		return storeError("encode roles", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (
			entry_id, role, path, digest, algorithm, roles_json, files, bytes, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID.String(),
		entry.Role,
		entry.Path,
		entry.Digest,
		string(entry.Algorithm),
		roles,
		entry.Files,
		entry.Bytes,
		entry.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return storeError("record fingerprint", err).WithContext("role", entry.Role)
	}
	return nil
}

// Latest returns the last entry recorded for role.
func (s *SQLiteStore) Latest(ctx context.Context, role string) (Entry, bool, error) {
	entries, err := s.List(ctx, Filter{Role: role, Limit: 1})
	if err != nil {
		return Entry{}, false, err
	}
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[0], true, nil
}

// List returns entries matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT entry_id, role, path, digest, algorithm, roles_json, files, bytes, recorded_at
		FROM fingerprints
	`
	var args []any
	if filter.Role != "" {
		query += " WHERE role = ?"
		args = append(args, filter.Role)
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("query fingerprints", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			id        string
			algorithm string
			roles     sql.NullString
			recorded  string
		)
		if err := rows.Scan(
			&id,
			&entry.Role,
			&entry.Path,
			&entry.Digest,
			&algorithm,
			&roles,
			&entry.Files,
			&entry.Bytes,
			&recorded,
		); err != nil {
			return nil, storeError("scan fingerprint", err)
		}
		if parsed, err := uuid.Parse(id); err == nil {
			entry.ID = parsed
		}
		entry.Algorithm = fingerprint.Algorithm(algorithm)
		entry.Roles = decodeRoles(roles.String)
		if ts, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			entry.RecordedAt = ts
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate fingerprints", err)
	}
	return entries, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS fingerprints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			path TEXT,
			digest TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			roles_json TEXT,
			files INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_fingerprints_role ON fingerprints(role);
	`)
	return err
}

func storeError(msg string, err error) *errors.StevedoreError {
	return errors.New(errors.CodeStore, msg, err).WithRecoverable(true)
}
