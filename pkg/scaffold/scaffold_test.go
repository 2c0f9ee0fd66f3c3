// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package scaffold

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
	"text/template"
	"time"

	"github.com/jllopis/stevedore/pkg/errors"
	"github.com/jllopis/stevedore/pkg/fingerprint"
	"github.com/jllopis/stevedore/pkg/role"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestGenerateWritesDefaultTemplates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "webserver")
	res, err := Generate(context.Background(), Options{
		RolePath:    dir,
		ProjectName: "Acme Shop",
		Description: "Serves the storefront",
		Now:         fixedClock,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.RoleName != "webserver" {
		t.Fatalf("expected role name from path, got %q", res.RoleName)
	}
	want := []string{
		"README.md",
		"defaults/main.yml",
		"handlers/main.yml",
		"meta/container.yml",
		"meta/main.yml",
		"tasks/main.yml",
	}
	got := slices.Clone(res.Written)
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Fatalf("Written = %v, want %v", got, want)
	}
	if len(res.Backups) != 0 {
		t.Fatalf("expected no backups, got %v", res.Backups)
	}

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	if err != nil {
		t.Fatalf("read README: %v", err)
	}
	if !strings.HasPrefix(string(readme), "# Webserver\n") {
		t.Fatalf("unexpected README heading: %q", readme)
	}
	if !strings.Contains(string(readme), "Serves the storefront") {
		t.Fatalf("expected description in README: %q", readme)
	}

	deps, err := role.Dependencies(dir)
	if err != nil {
		t.Fatalf("generated meta/main.yml does not parse: %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("expected no dependencies, got %v", deps)
	}

	meta, err := role.ReadDocument(filepath.Join(dir, role.MetadataPath))
	if err != nil {
		t.Fatalf("generated meta/container.yml does not parse: %v", err)
	}
	var container struct {
		Labels map[string]string `yaml:"labels"`
	}
	if err := meta.Decode(&container); err != nil {
		t.Fatalf("decode container metadata: %v", err)
	}
	if container.Labels["com.acme-shop.role"] != "webserver" {
		t.Fatalf("unexpected labels: %v", container.Labels)
	}
}

func TestGenerateRenamesExistingTasksFile(t *testing.T) {
	dir := t.TempDir()
	tasks := filepath.Join(dir, "tasks", "main.yml")
	if err := os.MkdirAll(filepath.Dir(tasks), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(tasks, []byte("- name: keep me\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := Generate(context.Background(), Options{RolePath: dir, RoleName: "app", ProjectName: "p", Now: fixedClock})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	renamed := filepath.Join(dir, "tasks", "main_260314150926.yml")
	old, err := os.ReadFile(renamed)
	if err != nil {
		t.Fatalf("expected existing tasks file at %s: %v", renamed, err)
	}
	if string(old) != "- name: keep me\n" {
		t.Fatalf("renamed file content changed: %q", old)
	}
	fresh, err := os.ReadFile(tasks)
	if err != nil {
		t.Fatalf("expected new tasks file: %v", err)
	}
	if !strings.Contains(string(fresh), "Announce app") {
		t.Fatalf("unexpected new tasks content: %q", fresh)
	}
	if len(res.Backups) != 1 || res.Backups[0].To != renamed {
		t.Fatalf("unexpected backups: %+v", res.Backups)
	}
}

func TestGenerateBacksUpOtherFiles(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("old readme"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Generate(context.Background(), Options{RolePath: dir, RoleName: "app", ProjectName: "p", Now: fixedClock}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	backup := readme + "_20260314150926"
	old, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("expected backup at %s: %v", backup, err)
	}
	if string(old) != "old readme" {
		t.Fatalf("backup content = %q", old)
	}
}

func TestGenerateTwiceWithinOneSecondKeepsEveryBackup(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("old readme"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	opts := Options{RolePath: dir, RoleName: "app", ProjectName: "p", Now: fixedClock}
	if _, err := Generate(context.Background(), opts); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	res, err := Generate(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	old, err := os.ReadFile(readme + "_20260314150926")
	if err != nil || string(old) != "old readme" {
		t.Fatalf("first backup lost: %q, %v", old, err)
	}
	second, err := os.ReadFile(readme + "_20260314150926_1")
	if err != nil {
		t.Fatalf("expected second backup: %v", err)
	}
	if !strings.HasPrefix(string(second), "# App\n") {
		t.Fatalf("second backup = %q", second)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks", "main_260314150926.yml")); err != nil {
		t.Fatalf("expected tasks backup from the second run: %v", err)
	}
	seen := map[string]bool{}
	for _, b := range res.Backups {
		if seen[b.To] {
			t.Fatalf("duplicate backup target %s", b.To)
		}
		seen[b.To] = true
	}
}

func TestGenerateEscapesYAMLValues(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "#web")
	_, err := Generate(context.Background(), Options{
		RolePath:    dir,
		ProjectName: "shop: retail",
		Description: `Web server: nginx "edge" tier`,
		Now:         fixedClock,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, err := role.Dependencies(dir); err != nil {
		t.Fatalf("generated meta/main.yml does not parse: %v", err)
	}
	meta, err := role.ReadDocument(filepath.Join(dir, "meta", "main.yml"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var info struct {
		Galaxy map[string]any `yaml:"galaxy_info"`
	}
	if err := meta.Decode(&info); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if info.Galaxy["role_name"] != "#web" || info.Galaxy["author"] != "shop: retail" ||
		info.Galaxy["description"] != `Web server: nginx "edge" tier` {
		t.Fatalf("galaxy_info = %v", info.Galaxy)
	}

	container, err := role.ReadDocument(filepath.Join(dir, role.MetadataPath))
	if err != nil {
		t.Fatalf("read container metadata: %v", err)
	}
	var labels struct {
		Labels map[string]string `yaml:"labels"`
	}
	if err := container.Decode(&labels); err != nil {
		t.Fatalf("decode labels: %v", err)
	}
	if labels.Labels["com.shop--retail.role"] != "#web" {
		t.Fatalf("labels = %v", labels.Labels)
	}

	digest, err := fingerprint.New(role.NewPathResolver(parent)).Fingerprint(context.Background(), "#web")
	if err != nil {
		t.Fatalf("fingerprint scaffolded role: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("digest = %q", digest)
	}
}

func TestYAMLScalar(t *testing.T) {
	for _, value := range []string{"plain", "a: b", "#hash", "1000", "true", "", "two\nlines", `say "hi"`, "- item"} {
		out, err := yamlScalar(value)
		if err != nil {
			t.Fatalf("yamlScalar(%q): %v", value, err)
		}
		if strings.Contains(out, "\n") {
			t.Fatalf("yamlScalar(%q) spans lines: %q", value, out)
		}
		doc, err := role.ParseDocument([]byte("key: " + out + "\n"))
		if err != nil {
			t.Fatalf("parse %q: %v", out, err)
		}
		var got struct {
			Key *string `yaml:"key"`
		}
		if err := doc.Decode(&got); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		if got.Key == nil || *got.Key != value {
			t.Fatalf("yamlScalar(%q) round trips to %v", value, got.Key)
		}
	}
}

func TestGenerateCustomTemplates(t *testing.T) {
	tree := fstest.MapFS{
		"tasks/main.yml.tmpl": {Data: []byte("# {{ .RoleName }} in {{ .ProjectName }}\n")},
		"files/static.conf":   {Data: []byte("listen 80\n")},
	}
	dir := t.TempDir()
	res, err := Generate(context.Background(), Options{
		RolePath:    dir,
		RoleName:    "proxy",
		ProjectName: "edge",
		Templates:   tree,
		Now:         fixedClock,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Written) != 2 {
		t.Fatalf("Written = %v", res.Written)
	}
	got, err := os.ReadFile(filepath.Join(dir, "tasks", "main.yml"))
	if err != nil {
		t.Fatalf("read tasks: %v", err)
	}
	if string(got) != "# proxy in edge\n" {
		t.Fatalf("tasks = %q", got)
	}
	static, err := os.ReadFile(filepath.Join(dir, "files", "static.conf"))
	if err != nil {
		t.Fatalf("read static: %v", err)
	}
	if string(static) != "listen 80\n" {
		t.Fatalf("static = %q", static)
	}
}

func TestGenerateTemplateErrorLeavesRoleUntouched(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("original"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tree := fstest.MapFS{
		"README.md.tmpl":      {Data: []byte("fine\n")},
		"tasks/main.yml.tmpl": {Data: []byte("{{ .Missing }}\n")},
	}
	_, err := Generate(context.Background(), Options{RolePath: dir, ProjectName: "p", Templates: tree, Now: fixedClock})
	if !errors.Is(err, errors.CodeTemplate) {
		t.Fatalf("expected TEMPLATE_ERROR, got %v", err)
	}
	got, err := os.ReadFile(readme)
	if err != nil || string(got) != "original" {
		t.Fatalf("README was modified: %q, %v", got, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the original README, got %d entries", len(entries))
	}
}

func TestGenerateParseError(t *testing.T) {
	tree := fstest.MapFS{"README.md.tmpl": {Data: []byte("{{ .RoleName ")}}
	_, err := Generate(context.Background(), Options{RolePath: t.TempDir(), ProjectName: "p", Templates: tree})
	if !errors.Is(err, errors.CodeTemplate) {
		t.Fatalf("expected TEMPLATE_ERROR, got %v", err)
	}
}

func TestGenerateRequiresRolePath(t *testing.T) {
	_, err := Generate(context.Background(), Options{RoleName: "x"})
	if !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestRenderToDirLogsContent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tmpl := template.Must(template.New("greeting").Parse("hello {{ . }}"))

	dir := t.TempDir()
	if err := RenderToDir(logger, tmpl, "greeting", dir, "nested/out.txt", "world"); err != nil {
		t.Fatalf("RenderToDir: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "nested", "out.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("rendered = %q", got)
	}
	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected rendered content in debug log, got %q", buf.String())
	}
}
