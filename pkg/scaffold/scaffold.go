// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package scaffold generates the initial file set of a new role.
package scaffold

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/stevedore/pkg/errors"
	"github.com/jllopis/stevedore/pkg/tempdir"
	"github.com/jllopis/stevedore/pkg/telemetry"
)

const (
	templateSuffix = ".tmpl"
	tasksFile      = "tasks/main.yml"

	backupLayout = "20060102150405"
	tasksLayout  = "060102150405"
)

//go:embed templates/role
var embedded embed.FS

// DefaultTemplates returns the built-in role template tree.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(embedded, "templates/role")
	if err != nil {
		panic(err)
	}
	return sub
}

// Options configures role generation.
type Options struct {
	RoleName    string // defaults to the base name of RolePath
	RolePath    string
	ProjectName string // defaults to the base name of the working directory
	Description string

	// Templates overrides the built-in template tree. Files ending in .tmpl
	// are rendered and written without the suffix.
	Templates fs.FS
	Now       func() time.Time
	Logger    *slog.Logger
}

// Context is the data every template is rendered with.
type Context struct {
	RoleName    string
	RolePath    string
	ProjectName string
	Description string
	StagingDir  string
}

// Backup records a pre-existing file moved out of the way.
type Backup struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result describes a generation.
type Result struct {
	RoleName string   `json:"role_name"`
	RolePath string   `json:"role_path"`
	Written  []string `json:"written"`
	Backups  []Backup `json:"backups,omitempty"`
}

// Generate renders the template tree into opts.RolePath. Files are rendered
// into a temporary staging directory first, so a template error leaves the
// role untouched.
func Generate(ctx context.Context, opts Options) (*Result, error) {
	ctx, span := otel.Tracer("stevedore/scaffold").Start(ctx, "scaffold.generate")
	defer span.End()

	res, err := generate(opts)
	if err != nil {
		span.RecordError(err, trace.WithAttributes(telemetry.ErrorAttributes(err)...))
		span.SetStatus(codes.Error, err.Error())
		telemetry.OrDiscard(opts.Logger).ErrorContext(ctx, "scaffold failed", "path", opts.RolePath, "error", err)
		return nil, err
	}
	span.SetAttributes(telemetry.ScaffoldAttributes(res.RoleName, len(res.Written), len(res.Backups))...)
	return res, nil
}

func generate(opts Options) (*Result, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	tmpl, files, err := parseTemplates(opts.Templates)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New(errors.CodeTemplate, "template tree is empty", nil)
	}

	res := &Result{RoleName: opts.RoleName, RolePath: opts.RolePath}
	err = tempdir.With(logger, "stevedore-scaffold-", func(staging string) error {
		data := Context{
			RoleName:    opts.RoleName,
			RolePath:    opts.RolePath,
			ProjectName: opts.ProjectName,
			Description: opts.Description,
			StagingDir:  staging,
		}
		for _, f := range files {
			if f.verbatim {
				if err := writeFile(staging, f.dest, f.raw); err != nil {
					return err
				}
				continue
			}
			if err := RenderToDir(logger, tmpl, f.name, staging, f.dest, data); err != nil {
				return err
			}
		}
		now := opts.Now()
		for _, f := range files {
			if err := install(logger, res, staging, opts.RolePath, f.dest, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("role scaffold generated",
		"role", res.RoleName,
		"path", res.RolePath,
		"written", len(res.Written),
		"backups", len(res.Backups),
	)
	return res, nil
}

func (o *Options) normalize() error {
	o.Logger = telemetry.OrDiscard(o.Logger)
	if strings.TrimSpace(o.RolePath) == "" {
		return errors.New(errors.CodeInvalidInput, "role path is required", nil)
	}
	abs, err := filepath.Abs(o.RolePath)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "invalid role path", err).WithContext("path", o.RolePath)
	}
	o.RolePath = abs
	if strings.TrimSpace(o.RoleName) == "" {
		o.RoleName = filepath.Base(abs)
	}
	if strings.TrimSpace(o.ProjectName) == "" {
		if wd, err := os.Getwd(); err == nil {
			o.ProjectName = filepath.Base(wd)
		} else {
			o.ProjectName = o.RoleName
		}
	}
	if o.Templates == nil {
		o.Templates = DefaultTemplates()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}

type templateFile struct {
	name string // template name, the slash path inside the tree
	dest string // output path relative to the role
	raw  []byte // content of files copied verbatim

	verbatim bool
}

func parseTemplates(tree fs.FS) (*template.Template, []templateFile, error) {
	root := template.New("role").Funcs(funcs)
	var files []templateFile
	err := fs.WalkDir(tree, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		content, err := fs.ReadFile(tree, p)
		if err != nil {
			return err
		}
		if !strings.HasSuffix(p, templateSuffix) {
			files = append(files, templateFile{name: p, dest: p, raw: content, verbatim: true})
			return nil
		}
		if _, err := root.New(p).Parse(string(content)); err != nil {
			return errors.New(errors.CodeTemplate, "parse template", err).WithContext("template", p)
		}
		files = append(files, templateFile{name: p, dest: strings.TrimSuffix(p, templateSuffix)})
		return nil
	})
	if err != nil {
		if errors.CodeOf(err) != "" {
			return nil, nil, err
		}
		return nil, nil, errors.New(errors.CodeIO, "read template tree", err)
	}
	return root, files, nil
}

var funcs = template.FuncMap{
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"slug": func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '.' {
				return r
			}
			return '-'
		}, s)
	},
	"quote":   yamlScalar,
	"oneline": oneline,
}

// yamlScalar renders s as a YAML string scalar that can follow "key: " on a
// single line.
func yamlScalar(s string) (string, error) {
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.ContainsAny(s, "\r\n") {
		node.Style = yaml.DoubleQuotedStyle
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func oneline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RenderToDir executes the named template with data and writes the output
// to dir/dest, creating parent directories as needed.
func RenderToDir(logger *slog.Logger, tmpl *template.Template, name, dir, dest string, data any) error {
	logger = telemetry.OrDiscard(logger)

	var out strings.Builder
	if err := tmpl.ExecuteTemplate(&out, name, data); err != nil {
		return errors.New(errors.CodeTemplate, "render template", err).WithContext("template", name)
	}
	logger.Debug("rendered template", "template", name, "dest", dest, "content", out.String())
	return writeFile(dir, dest, []byte(out.String()))
}

func writeFile(dir, dest string, content []byte) error {
	target := filepath.Join(dir, filepath.FromSlash(dest))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.New(errors.CodeIO, "create directory", err).WithContext("path", filepath.Dir(target))
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return errors.New(errors.CodeIO, "write file", err).WithContext("path", target)
	}
	return nil
}

// install moves one staged file into the role, backing up whatever was there.
func install(logger *slog.Logger, res *Result, staging, rolePath, dest string, now time.Time) error {
	target := filepath.Join(rolePath, filepath.FromSlash(dest))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.New(errors.CodeIO, "create directory", err).WithContext("path", filepath.Dir(target))
	}

	if _, err := os.Lstat(target); err == nil {
		backup, err := freeBackupPath(target, dest, now)
		if err != nil {
			return err
		}
		logger.Debug("backing up existing file", "from", target, "to", backup)
		if err := os.Rename(target, backup); err != nil {
			return errors.New(errors.CodeIO, "back up existing file", err).WithContext("path", target)
		}
		res.Backups = append(res.Backups, Backup{From: target, To: backup})
	} else if !os.IsNotExist(err) {
		return errors.New(errors.CodeIO, "stat target", err).WithContext("path", target)
	}

	content, err := os.ReadFile(filepath.Join(staging, filepath.FromSlash(dest)))
	if err != nil {
		return errors.New(errors.CodeIO, "read staged file", err).WithContext("dest", dest)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return errors.New(errors.CodeIO, "write role file", err).WithContext("path", target)
	}
	res.Written = append(res.Written, dest)
	return nil
}

// backupPath names the file an existing target is moved to. The default task
// list becomes tasks/main_<yymmddHHMMSS>.yml. A non-zero n is appended to
// tell apart backups taken within the same second.
func backupPath(target, dest string, now time.Time, n int) string {
	suffix := ""
	if n > 0 {
		suffix = fmt.Sprintf("_%d", n)
	}
	if dest == tasksFile {
		return filepath.Join(filepath.Dir(target), fmt.Sprintf("main_%s%s.yml", now.Format(tasksLayout), suffix))
	}
	return target + "_" + now.Format(backupLayout) + suffix
}

func freeBackupPath(target, dest string, now time.Time) (string, error) {
	for n := 0; ; n++ {
		candidate := backupPath(target, dest, now, n)
		_, err := os.Lstat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", errors.New(errors.CodeIO, "stat backup path", err).WithContext("path", candidate)
		}
	}
}
