// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package role

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jllopis/stevedore/pkg/errors"
)

// Well-known documents inside a role directory, in slash form.
const (
	MetaMainPath = "meta/main.yml"
	MetadataPath = "meta/container.yml"
	DefaultsPath = "defaults/main.yml"
)

// LoadContent resolves the role and loads the document at relPath inside it.
// A missing document yields an empty mapping.
func LoadContent(resolver Resolver, name, relPath string) (*Document, error) {
	dir, err := resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	return ReadDocument(filepath.Join(dir, filepath.FromSlash(relPath)))
}

// LoadMetadata loads meta/container.yml for the named role.
func LoadMetadata(resolver Resolver, name string) (*Document, error) {
	return LoadContent(resolver, name, MetadataPath)
}

// LoadDefaults loads defaults/main.yml for the named role.
func LoadDefaults(resolver Resolver, name string) (*Document, error) {
	return LoadContent(resolver, name, DefaultsPath)
}

// SaveMetadata writes doc back to meta/container.yml of the named role.
func SaveMetadata(resolver Resolver, name string, doc *Document) error {
	dir, err := resolver.Resolve(name)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.FromSlash(MetadataPath))
	if err := doc.Save(path); err != nil {
		return errors.New(errors.CodeIO, "write role metadata", err).
			WithContext("role", name).
			WithContext("path", path)
	}
	return nil
}

// ReadDocument loads a YAML mapping document from path. A missing file
// yields an empty mapping.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, errors.New(errors.CodeIO, "read role document", err).
			WithContext("path", path)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, errors.New(errors.CodeParse, "parse role document", err).
			WithContext("path", path)
	}
	return doc, nil
}
