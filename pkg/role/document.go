// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package role

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Document is a YAML mapping document that keeps key order and comments
// across a load/save round trip.
type Document struct {
	node yaml.Node
}

// NewDocument returns an empty mapping document.
func NewDocument() *Document {
	return &Document{node: yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
	}}
}

// ParseDocument parses data as a YAML mapping. Empty input yields an empty
// mapping.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc.node); err != nil {
		return nil, err
	}
	if doc.node.Kind == 0 || len(doc.node.Content) == 0 {
		return NewDocument(), nil
	}
	root := doc.node.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return NewDocument(), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: document root must be a mapping", root.Line)
	}
	return &doc, nil
}

func (d *Document) root() *yaml.Node {
	return d.node.Content[0]
}

// Decode decodes the document into v.
func (d *Document) Decode(v any) error {
	return d.node.Decode(v)
}

// Map decodes the document into a generic map.
func (d *Document) Map() (map[string]any, error) {
	out := map[string]any{}
	if err := d.root().Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Keys returns the top-level keys in document order.
func (d *Document) Keys() []string {
	content := d.root().Content
	keys := make([]string, 0, len(content)/2)
	for i := 0; i+1 < len(content); i += 2 {
		keys = append(keys, content[i].Value)
	}
	return keys
}

// Set replaces the value of a top-level key in place, or appends the key
// when it is absent.
func (d *Document) Set(key string, value any) error {
	var encoded yaml.Node
	if err := encoded.Encode(value); err != nil {
		return err
	}
	root := d.root()
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			root.Content[i+1] = &encoded
			return nil
		}
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&encoded,
	)
	return nil
}

// Encode renders the document with two-space indentation.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the document to path, creating parent directories.
func (d *Document) Save(path string) error {
	data, err := d.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
