package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Fingerprint.Algorithm != "sha256" {
		t.Errorf("expected default algorithm sha256, got %s", cfg.Fingerprint.Algorithm)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("expected default exporter none, got %s", cfg.Telemetry.Exporter)
	}
	want := []string{"roles", "~/.ansible/roles", "/etc/ansible/roles"}
	if !reflect.DeepEqual(cfg.Roles.Paths, want) {
		t.Errorf("roles paths: got %v, want %v", cfg.Roles.Paths, want)
	}
	if cfg.Ledger.Enabled {
		t.Errorf("expected ledger disabled by default")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("STEVEDORE_FINGERPRINT_ALGORITHM", "blake3")
	t.Setenv("STEVEDORE_SCAFFOLD_TEMPLATES_DIR", "/srv/templates")
	t.Setenv("STEVEDORE_ROLES_PATHS", "/a"+string(os.PathListSeparator)+"/b")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Fingerprint.Algorithm != "blake3" {
		t.Errorf("expected algorithm blake3 from env, got %s", cfg.Fingerprint.Algorithm)
	}
	if cfg.Scaffold.TemplatesDir != "/srv/templates" {
		t.Errorf("expected templates dir from env, got %s", cfg.Scaffold.TemplatesDir)
	}
	if !reflect.DeepEqual(cfg.Roles.Paths, []string{"/a", "/b"}) {
		t.Errorf("expected roles paths from env, got %v", cfg.Roles.Paths)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stevedore.yaml")
	content := `
log:
  level: debug
roles:
  paths:
    - ./roles
    - ./vendor/roles
ledger:
  enabled: true
  dsn: /tmp/ledger.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if !reflect.DeepEqual(cfg.Roles.Paths, []string{"./roles", "./vendor/roles"}) {
		t.Errorf("unexpected roles paths: %v", cfg.Roles.Paths)
	}
	if !cfg.Ledger.Enabled || cfg.Ledger.DSN != "/tmp/ledger.db" {
		t.Errorf("unexpected ledger config: %+v", cfg.Ledger)
	}
	// Untouched sections keep their defaults.
	if cfg.Fingerprint.Algorithm != "sha256" {
		t.Errorf("expected default algorithm, got %s", cfg.Fingerprint.Algorithm)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := `
fingerprint:
  algorithm: sha256
log:
  level: info
  format: json
`
	basePath := filepath.Join(tmpDir, "stevedore.yaml")
	if err := os.WriteFile(basePath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	ciConfig := `
fingerprint:
  algorithm: blake3
log:
  level: warn
`
	if err := os.WriteFile(filepath.Join(tmpDir, "stevedore.ci.yaml"), []byte(ciConfig), 0644); err != nil {
		t.Fatalf("failed to write ci config: %v", err)
	}

	tests := []struct {
		name          string
		profile       string
		wantAlgorithm string
		wantLogLevel  string
		wantFormat    string // Should inherit from base when not overridden
	}{
		{
			name:          "no profile - base only",
			profile:       "",
			wantAlgorithm: "sha256",
			wantLogLevel:  "info",
			wantFormat:    "json",
		},
		{
			name:          "ci profile",
			profile:       "ci",
			wantAlgorithm: "blake3",
			wantLogLevel:  "warn",
			wantFormat:    "json",
		},
		{
			name:          "nonexistent profile - falls back to base",
			profile:       "staging",
			wantAlgorithm: "sha256",
			wantLogLevel:  "info",
			wantFormat:    "json",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}

			if cfg.Fingerprint.Algorithm != tc.wantAlgorithm {
				t.Errorf("algorithm: got %s, want %s", cfg.Fingerprint.Algorithm, tc.wantAlgorithm)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.Log.Format != tc.wantFormat {
				t.Errorf("log format: got %s, want %s", cfg.Log.Format, tc.wantFormat)
			}
		})
	}
}

func TestLoadWithOverrides(t *testing.T) {
	t.Setenv("STEVEDORE_FINGERPRINT_ALGORITHM", "blake3")

	cfg, err := LoadWith(LoadOptions{
		Overrides: []string{
			"fingerprint.algorithm=sha256",
			"ledger.enabled=true",
			"roles.paths=[/opt/roles, ./roles]",
			"telemetry.otlp_endpoint=localhost:4317",
			"scaffold.project_name=",
		},
	})
	if err != nil {
		t.Fatalf("LoadWith failed: %v", err)
	}
	if cfg.Fingerprint.Algorithm != "sha256" {
		t.Errorf("expected cli override to beat env, got %s", cfg.Fingerprint.Algorithm)
	}
	if !cfg.Ledger.Enabled {
		t.Errorf("expected ledger.enabled=true")
	}
	if !reflect.DeepEqual(cfg.Roles.Paths, []string{"/opt/roles", "./roles"}) {
		t.Errorf("unexpected roles paths: %v", cfg.Roles.Paths)
	}
	if cfg.Telemetry.OTLPEndpoint != "localhost:4317" {
		t.Errorf("unexpected otlp endpoint: %s", cfg.Telemetry.OTLPEndpoint)
	}
}

func TestParseOverrideErrors(t *testing.T) {
	for _, raw := range []string{"invalid", "=value", ""} {
		if _, _, err := parseOverride(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()

	devPath := filepath.Join(tmpDir, "stevedore.dev.yaml")
	if err := os.WriteFile(devPath, []byte("log: {}"), 0644); err != nil {
		t.Fatalf("failed to create dev config: %v", err)
	}

	basePath := filepath.Join(tmpDir, "stevedore.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{"existing profile", basePath, "dev", devPath},
		{"nonexistent profile", basePath, "prod", ""},
		{"empty profile", basePath, "", ""},
		{"empty base", "", "dev", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := profileConfigPath(tc.base, tc.profile)
			if got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}
