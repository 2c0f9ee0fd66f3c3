// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package role resolves role identifiers to directories and loads the
// structured documents a role carries (dependency declarations, container
// metadata and defaults).
package role

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/stevedore/pkg/errors"
)

// Resolver maps a role identifier to the directory holding the role.
type Resolver interface {
	Resolve(name string) (string, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(name string) (string, error)

// Resolve calls f(name).
func (f ResolverFunc) Resolve(name string) (string, error) {
	return f(name)
}

// PathResolver looks roles up the way the configuration-management tool does
// for a roles_path setting: an identifier naming an existing directory wins,
// otherwise each search path is tried in order.
type PathResolver struct {
	// Paths are searched in order for <path>/<name>. A leading "~/" expands
	// to the user's home directory; relative entries are taken from the
	// working directory.
	Paths []string
}

// NewPathResolver returns a resolver searching paths.
func NewPathResolver(paths ...string) *PathResolver {
	return &PathResolver{Paths: paths}
}

// Resolve returns the absolute, symlink-free directory of the named role.
func (r *PathResolver) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New(errors.CodeRoleNotFound, "empty role identifier", nil)
	}

	candidates := make([]string, 0, len(r.Paths)+1)
	if looksLikePath(name) {
		candidates = append(candidates, expandHome(name))
	}
	for _, dir := range r.Paths {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		candidates = append(candidates, filepath.Join(expandHome(dir), name))
	}
	if !looksLikePath(name) {
		// A bare name that is also a directory in the working directory.
		candidates = append(candidates, name)
	}

	for _, candidate := range candidates {
		if dir, ok := existingDir(candidate); ok {
			return dir, nil
		}
	}
	return "", errors.Newf(errors.CodeRoleNotFound, "role %q not found", name).
		WithAttribute("role", name).
		WithContext("role", name).
		WithContext("searched", candidates)
}

func looksLikePath(name string) bool {
	return filepath.IsAbs(name) ||
		strings.ContainsRune(name, '/') ||
		strings.ContainsRune(name, filepath.Separator) ||
		strings.HasPrefix(name, "~")
}

func existingDir(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return filepath.Clean(real), true
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
