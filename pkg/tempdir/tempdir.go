// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package tempdir provides temporary directories scoped to a unit of work.
package tempdir

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jllopis/stevedore/pkg/errors"
	"github.com/jllopis/stevedore/pkg/telemetry"
)

// Make creates a temporary directory whose name starts with prefix and
// returns its symlink-free path together with a release func that removes it
// recursively. release never fails; removal errors are logged.
func Make(logger *slog.Logger, prefix string) (string, func(), error) {
	logger = telemetry.OrDiscard(logger)

	created, err := os.MkdirTemp("", prefix)
	if err != nil {
		return "", nil, errors.New(errors.CodeIO, "create temporary directory", err).
			WithContext("prefix", prefix)
	}
	release := func() {
		if err := os.RemoveAll(created); err != nil {
			logger.Error("failed to remove temporary directory", "path", created, "error", err)
			return
		}
		logger.Debug("removed temporary directory", "path", created)
	}

	dir, err := filepath.EvalSymlinks(created)
	if err != nil {
		release()
		return "", nil, errors.New(errors.CodeIO, "resolve temporary directory", err).
			WithContext("path", created)
	}
	logger.Debug("created temporary directory", "path", dir)
	return dir, release, nil
}

// With runs fn inside a fresh temporary directory and removes the directory
// afterwards, whether fn returns an error or panics.
func With(logger *slog.Logger, prefix string, fn func(dir string) error) error {
	dir, release, err := Make(logger, prefix)
	if err != nil {
		return err
	}
	defer release()
	return fn(dir)
}
