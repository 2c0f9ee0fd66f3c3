// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes a content digest for a role and every role it
// transitively depends on. The digest changes whenever a file is added,
// removed, renamed or edited anywhere in that set, and stays the same for
// byte-identical trees wherever they live on disk.
package fingerprint

import (
	"context"
	"encoding/hex"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/stevedore/pkg/errors"
	"github.com/jllopis/stevedore/pkg/role"
	"github.com/jllopis/stevedore/pkg/telemetry"
)

const blockSize = 64 * 1024

// separator terminates every path and every file body fed to the digest.
var separator = []byte("::")

// Result describes one fingerprint computation.
type Result struct {
	Role      string    `json:"role"`
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	Algorithm Algorithm `json:"algorithm"`
	// Roles lists every role hashed, in traversal order. A role reached
	// through two dependency paths appears twice.
	Roles []string `json:"roles"`
	Files int      `json:"files"`
	Bytes int64    `json:"bytes"`
}

// Calculator computes role fingerprints.
type Calculator struct {
	resolver  role.Resolver
	algorithm Algorithm
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *telemetry.FingerprintMetrics
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithAlgorithm selects the digest algorithm.
func WithAlgorithm(a Algorithm) Option {
	return func(c *Calculator) {
		if a != "" {
			c.algorithm = a
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) {
		c.logger = telemetry.OrDiscard(logger)
	}
}

// WithMetrics records per-run counters.
func WithMetrics(m *telemetry.FingerprintMetrics) Option {
	return func(c *Calculator) {
		c.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Calculator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New returns a Calculator resolving role identifiers with resolver.
func New(resolver role.Resolver, opts ...Option) *Calculator {
	c := &Calculator{
		resolver:  resolver,
		algorithm: SHA256,
		logger:    telemetry.Discard(),
		tracer:    otel.Tracer("stevedore/fingerprint"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fingerprint returns the lowercase hex digest of the role and its
// transitive dependencies.
func (c *Calculator) Fingerprint(ctx context.Context, name string) (string, error) {
	res, err := c.Calculate(ctx, name)
	if err != nil {
		return "", err
	}
	return res.Digest, nil
}

// Calculate computes the fingerprint and reports what went into it.
func (c *Calculator) Calculate(ctx context.Context, name string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "fingerprint.calculate")
	defer span.End()

	res, err := c.calculate(ctx, name)
	if err != nil {
		span.RecordError(err, trace.WithAttributes(telemetry.ErrorAttributes(err)...))
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RecordError(ctx, err, "fingerprint")
		c.logger.ErrorContext(ctx, "fingerprint failed", "role", name, "error", err)
		return nil, err
	}
	span.SetAttributes(telemetry.FingerprintAttributes(string(res.Algorithm), res.Digest, len(res.Roles), res.Files, res.Bytes)...)
	c.metrics.RecordRun(ctx, string(res.Algorithm), len(res.Roles), res.Files, res.Bytes)
	c.logger.InfoContext(ctx, "fingerprint computed",
		"role", name,
		"digest", res.Digest,
		"algorithm", res.Algorithm,
		"roles", len(res.Roles),
		"files", res.Files,
	)
	return res, nil
}

func (c *Calculator) calculate(ctx context.Context, name string) (*Result, error) {
	dir, err := c.resolve(name)
	if err != nil {
		return nil, err
	}
	w := &walker{
		calc: c,
		hash: c.algorithm.newHash(),
		buf:  make([]byte, blockSize),
		res:  &Result{Role: name, Path: dir, Algorithm: c.algorithm},
	}
	if err := w.hashRole(ctx, name, dir, nil); err != nil {
		return nil, err
	}
	w.res.Digest = hex.EncodeToString(w.hash.Sum(nil))
	return w.res, nil
}

func (c *Calculator) resolve(name string) (string, error) {
	dir, err := c.resolver.Resolve(name)
	if err != nil {
		if errors.CodeOf(err) == "" {
			err = errors.Newf(errors.CodeRoleNotFound, "role %q not found", name).WithContext("role", name)
		}
		return "", err
	}
	// Cycle detection compares canonical paths.
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", errors.New(errors.CodeRoleNotFound, "resolve role directory", err).
			WithContext("role", name).
			WithContext("path", dir)
	}
	return real, nil
}

type frame struct {
	name string
	dir  string
}

// walker carries the running digest through one computation.
type walker struct {
	calc *Calculator
	hash hash.Hash
	buf  []byte
	res  *Result
}

// hashRole feeds the role tree and then, inline, every dependency into the
// same running digest. chain is the current recursion path.
func (w *walker) hashRole(ctx context.Context, name, dir string, chain []frame) error {
	for _, f := range chain {
		if f.dir == dir {
			return cycleError(append(chain, frame{name: name, dir: dir}))
		}
	}
	chain = append(chain, frame{name: name, dir: dir})

	ctx, span := w.calc.tracer.Start(ctx, "fingerprint.role",
		trace.WithAttributes(telemetry.RoleAttributes(name, dir, len(chain)-1)...))
	defer span.End()

	w.calc.logger.DebugContext(ctx, "hashing role", "role", name, "path", dir, "depth", len(chain)-1)
	w.res.Roles = append(w.res.Roles, name)

	if err := w.hashTree(dir); err != nil {
		return err
	}

	deps, err := role.Dependencies(dir)
	if err != nil {
		return err
	}
	for _, dep := range dependencyNames(deps) {
		depDir, err := w.calc.resolve(dep)
		if err != nil {
			return errors.New(errors.CodeOf(err), "resolve dependency", err).
				WithContext("role", name).
				WithContext("dependency", dep)
		}
		if err := w.hashRole(ctx, dep, depDir, chain); err != nil {
			return err
		}
	}
	return nil
}

// hashTree walks root in lexical order. Paths are fed relative to root and
// in slash form so the digest does not depend on where the role is installed
// or on the platform separator.
func (w *walker) hashTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return ioError("walk role directory", path, err)
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				return ioError("stat symlink target", path, err)
			}
			if !info.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return ioError("relativize path", path, err)
		}
		return w.hashFile(filepath.ToSlash(rel), path)
	})
}

func (w *walker) hashFile(rel, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ioError("open file", path, err)
	}
	defer f.Close()

	_, _ = io.WriteString(w.hash, rel)
	_, _ = w.hash.Write(separator)
	n, err := io.CopyBuffer(w.hash, onlyReader{f}, w.buf)
	if err != nil {
		return ioError("read file", path, err)
	}
	_, _ = w.hash.Write(separator)

	w.res.Files++
	w.res.Bytes += n
	return nil
}

// onlyReader hides WriterTo so CopyBuffer streams through the fixed block buffer.
type onlyReader struct {
	r io.Reader
}

func (o onlyReader) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

// dependencyNames returns the declared names sorted and deduplicated, so the
// order dependencies are listed in does not change the digest.
func dependencyNames(deps []role.Dependency) []string {
	names := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep.Name != "" {
			names = append(names, dep.Name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func ioError(msg, path string, err error) error {
	return errors.New(errors.CodeIO, msg, err).WithContext("path", path)
}

func cycleError(chain []frame) error {
	names := make([]string, len(chain))
	for i, f := range chain {
		names[i] = f.name
	}
	return errors.Newf(errors.CodeCyclicDependency, "cyclic role dependency: %s", strings.Join(names, " -> ")).
		WithAttribute("cycle", strings.Join(names, " -> ")).
		WithContext("chain", names)
}
