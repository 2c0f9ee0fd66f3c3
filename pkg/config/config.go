// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Stevedore settings from defaults, an optional YAML
// file, an optional profile overlay, STEVEDORE_* environment variables and
// command-line overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is the config file picked up from the working directory when
// no explicit path is given.
const DefaultPath = "stevedore.yaml"

const envPrefix = "STEVEDORE_"

type Config struct {
	Log         LogConfig         `koanf:"log"`
	Roles       RolesConfig       `koanf:"roles"`
	Fingerprint FingerprintConfig `koanf:"fingerprint"`
	Scaffold    ScaffoldConfig    `koanf:"scaffold"`
	Ledger      LedgerConfig      `koanf:"ledger"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// RolesConfig lists the directories searched when resolving a role name.
type RolesConfig struct {
	Paths []string `koanf:"paths"`
}

type FingerprintConfig struct {
	Algorithm string `koanf:"algorithm"` // sha256, blake3
}

type ScaffoldConfig struct {
	TemplatesDir string `koanf:"templates_dir"` // empty uses the embedded role templates
	ProjectName  string `koanf:"project_name"`
}

// LedgerConfig controls where recorded fingerprints are kept.
type LedgerConfig struct {
	Enabled bool   `koanf:"enabled"`
	DSN     string `koanf:"dsn"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// LoadOptions selects the sources layered on top of the defaults.
type LoadOptions struct {
	// Path is the base YAML file. Empty skips the file layer.
	Path string
	// Profile selects an overlay file next to Path (stevedore.<profile>.yaml).
	Profile string
	// Overrides are key=value pairs applied last. Values are parsed as YAML
	// so lists and booleans can be expressed inline.
	Overrides []string
}

// Load reads the config file at path (if any) over the defaults.
func Load(path string) (*Config, error) {
	return LoadWith(LoadOptions{Path: path})
}

// LoadWithProfile loads the base config plus the profile overlay when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return LoadWith(LoadOptions{Path: path, Profile: profile})
}

// LoadWith builds the configuration from every layer in opts.
func LoadWith(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	// 1. Load from file
	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", opts.Path, err)
		}
		if overlay := profileConfigPath(opts.Path, opts.Profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile config %s: %w", overlay, err)
			}
		}
	}

	// 2. Load from ENV (STEVEDORE_FINGERPRINT_ALGORITHM -> fingerprint.algorithm)
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKeyValue), nil); err != nil {
		return nil, err
	}

	// 3. Command-line overrides
	for _, raw := range opts.Overrides {
		key, value, err := parseOverride(raw)
		if err != nil {
			return nil, err
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("apply override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("roles.paths", []string{"roles", "~/.ansible/roles", "/etc/ansible/roles"})
	k.Set("fingerprint.algorithm", "sha256")
	k.Set("scaffold.templates_dir", "")
	k.Set("scaffold.project_name", "")
	k.Set("ledger.enabled", false)
	k.Set("ledger.dsn", filepath.Join(".stevedore", "fingerprints.db"))
	k.Set("telemetry.exporter", "none")
	k.Set("telemetry.otlp_endpoint", "")
	k.Set("telemetry.otlp_insecure", false)
}

// envKeyValue maps STEVEDORE_SECTION_SOME_KEY to section.some_key. Every
// setting lives one level deep, so only the first underscore is a separator.
// roles.paths is split on the OS path list separator like PATH.
func envKeyValue(key, value string) (string, interface{}) {
	key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", ".", 1)
	if key == "roles.paths" {
		return key, filepath.SplitList(value)
	}
	return key, value
}

// parseOverride splits key=value and decodes value as a YAML scalar or flow
// collection, falling back to the raw string.
func parseOverride(raw string) (string, any, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid override %q: expected key=value", raw)
	}
	var decoded any
	if err := yamlv3.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
		return key, value, nil
	}
	return key, decoded, nil
}

// profileConfigPath returns the overlay for profile next to base, or "" when
// there is none on disk.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}
