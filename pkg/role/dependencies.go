// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package role

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jllopis/stevedore/pkg/errors"
)

// Dependency is one entry of the dependencies list in meta/main.yml.
type Dependency struct {
	Name string
}

// Dependencies reads the dependency declaration of the role at dir. A role
// without meta/main.yml has no dependencies. Entries that do not name a role
// are skipped.
func Dependencies(dir string) ([]Dependency, error) {
	path := filepath.Join(dir, filepath.FromSlash(MetaMainPath))
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	var meta struct {
		Dependencies any `yaml:"dependencies"`
	}
	if err := doc.Decode(&meta); err != nil {
		return nil, errors.New(errors.CodeParse, "decode dependency declaration", err).
			WithContext("path", path)
	}
	if meta.Dependencies == nil {
		return nil, nil
	}
	entries, ok := meta.Dependencies.([]any)
	if !ok {
		return nil, errors.New(errors.CodeParse, "decode dependency declaration",
			fmt.Errorf("dependencies must be a list, got %T", meta.Dependencies)).
			WithContext("path", path)
	}

	deps := make([]Dependency, 0, len(entries))
	for _, entry := range entries {
		if name := dependencyName(entry); name != "" {
			deps = append(deps, Dependency{Name: name})
		}
	}
	return deps, nil
}

// dependencyName accepts the short form ("common") and the mapping form
// ({role: common} or {name: common}).
func dependencyName(entry any) string {
	switch v := entry.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		for _, key := range []string{"role", "name"} {
			if name, ok := v[key].(string); ok && strings.TrimSpace(name) != "" {
				return strings.TrimSpace(name)
			}
		}
	}
	return ""
}
