// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/stevedore/pkg/errors"
	"github.com/jllopis/stevedore/pkg/fingerprint"
	"github.com/jllopis/stevedore/pkg/imageconfig"
	"github.com/jllopis/stevedore/pkg/ledger"
	"github.com/jllopis/stevedore/pkg/role"
	"github.com/jllopis/stevedore/pkg/scaffold"
)

// errHelp reports that a command printed its usage and has nothing else to do.
var errHelp = stderrors.New("help requested")

type fingerprintOutput struct {
	*fingerprint.Result
	Changed  *bool `json:"changed,omitempty"`
	Recorded bool  `json:"recorded,omitempty"`
}

func (c *cli) runFingerprint(ctx context.Context, args []string) error {
	fs := c.flagSet("fingerprint")
	record := fs.Bool("record", false, "record the fingerprints in the ledger")
	check := fs.Bool("check", false, "compare against the last recorded fingerprint")
	algorithmName := fs.String("algorithm", c.cfg.Fingerprint.Algorithm, "digest algorithm (sha256, blake3)")
	roles, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		return NewInvalidArgumentError("role", "fingerprint needs at least one role")
	}
	algorithm, err := fingerprint.ParseAlgorithm(*algorithmName)
	if err != nil {
		return err
	}

	var store *ledger.SQLiteStore
	recording := *record || c.cfg.Ledger.Enabled
	if recording || *check {
		if store, err = c.openLedger(); err != nil {
			return err
		}
		defer store.Close()
	}

	calc := fingerprint.New(c.resolver,
		fingerprint.WithAlgorithm(algorithm),
		fingerprint.WithLogger(c.logger),
		fingerprint.WithMetrics(c.metrics),
	)
	outputs := make([]fingerprintOutput, 0, len(roles))
	for _, name := range roles {
		res, err := calc.Calculate(ctx, name)
		if err != nil {
			return err
		}
		out := fingerprintOutput{Result: res}
		if *check {
			changed, err := ledger.Changed(ctx, store, res)
			if err != nil {
				return err
			}
			out.Changed = &changed
		}
		if recording {
			if err := store.Record(ctx, ledger.NewEntry(res)); err != nil {
				return err
			}
			out.Recorded = true
		}
		outputs = append(outputs, out)
	}

	if c.json {
		return writeJSON(c.stdout, outputs)
	}
	for _, out := range outputs {
		line := out.Digest + "  " + out.Role
		if out.Changed != nil {
			if *out.Changed {
				line += "  changed"
			} else {
				line += "  unchanged"
			}
		}
		if _, err := fmt.Fprintln(c.stdout, line); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) runImageConfig(args []string) error {
	rest, err := c.parse(c.flagSet("image-config"), args)
	if err != nil {
		return err
	}
	name, err := singleArg(rest, "role")
	if err != nil {
		return err
	}
	doc, err := role.LoadMetadata(c.resolver, name)
	if err != nil {
		return err
	}
	metadata, err := doc.Map()
	if err != nil {
		return err
	}
	cfg, err := imageconfig.Translate(metadata)
	if err != nil {
		return err
	}
	return writeJSON(c.stdout, cfg)
}

func (c *cli) runInitRole(ctx context.Context, args []string) error {
	fs := c.flagSet("init-role")
	name := fs.String("name", "", "role name (default: base name of the path)")
	project := fs.String("project", c.cfg.Scaffold.ProjectName, "project name")
	description := fs.String("description", "", "one line description of the role")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	path, err := singleArg(rest, "path")
	if err != nil {
		return err
	}

	opts := scaffold.Options{
		RoleName:    *name,
		RolePath:    path,
		ProjectName: *project,
		Description: *description,
		Logger:      c.logger,
	}
	if dir := c.cfg.Scaffold.TemplatesDir; dir != "" {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return errors.New(errors.CodeNotFound, "scaffold templates directory not found", err).
				WithContext("templates_dir", dir)
		}
		opts.Templates = os.DirFS(dir)
	}
	res, err := scaffold.Generate(ctx, opts)
	if err != nil {
		return err
	}

	if c.json {
		return writeJSON(c.stdout, res)
	}
	fmt.Fprintf(c.stdout, "Role %s created at %s\n", res.RoleName, res.RolePath)
	for _, b := range res.Backups {
		fmt.Fprintf(c.stdout, "  Backed up: %s -> %s\n", b.From, b.To)
	}
	for _, f := range res.Written {
		fmt.Fprintf(c.stdout, "  Created: %s\n", f)
	}
	return nil
}

func (c *cli) runMetadata(args []string) error {
	fs := c.flagSet("metadata")
	sets := fs.StringArray("set", nil, "set a top-level key (key=value, value parsed as YAML)")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	name, err := singleArg(rest, "role")
	if err != nil {
		return err
	}
	doc, err := role.LoadMetadata(c.resolver, name)
	if err != nil {
		return err
	}
	if len(*sets) > 0 {
		for _, raw := range *sets {
			key, value, err := parseAssignment(raw)
			if err != nil {
				return err
			}
			if err := doc.Set(key, value); err != nil {
				return NewInvalidArgumentError(raw, err.Error())
			}
		}
		if err := role.SaveMetadata(c.resolver, name, doc); err != nil {
			return err
		}
		c.logger.Info("role metadata updated", "role", name, "keys", len(*sets))
	}
	return c.writeDocument(doc)
}

func (c *cli) runDefaults(args []string) error {
	rest, err := c.parse(c.flagSet("defaults"), args)
	if err != nil {
		return err
	}
	name, err := singleArg(rest, "role")
	if err != nil {
		return err
	}
	doc, err := role.LoadDefaults(c.resolver, name)
	if err != nil {
		return err
	}
	return c.writeDocument(doc)
}

type depNode struct {
	Role         string     `json:"role"`
	Path         string     `json:"path"`
	Cycle        bool       `json:"cycle,omitempty"`
	Dependencies []*depNode `json:"dependencies,omitempty"`
}

func (c *cli) runDeps(args []string) error {
	rest, err := c.parse(c.flagSet("deps"), args)
	if err != nil {
		return err
	}
	name, err := singleArg(rest, "role")
	if err != nil {
		return err
	}
	tree, err := c.dependencyTree(name, nil)
	if err != nil {
		return err
	}
	if c.json {
		return writeJSON(c.stdout, tree)
	}
	printTree(c.stdout, tree, 0)
	return nil
}

// dependencyTree follows meta/main.yml declarations; a role already on the
// current path is reported as a cycle instead of being expanded.
func (c *cli) dependencyTree(name string, path []string) (*depNode, error) {
	dir, err := c.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	node := &depNode{Role: name, Path: dir}
	for _, seen := range path {
		if seen == dir {
			node.Cycle = true
			return node, nil
		}
	}
	deps, err := role.Dependencies(dir)
	if err != nil {
		return nil, err
	}
	for _, dep := range deps {
		if dep.Name == "" {
			continue
		}
		child, err := c.dependencyTree(dep.Name, append(path, dir))
		if err != nil {
			return nil, err
		}
		node.Dependencies = append(node.Dependencies, child)
	}
	return node, nil
}

func printTree(w io.Writer, node *depNode, depth int) {
	suffix := ""
	if node.Cycle {
		suffix = " (cycle)"
	}
	fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), node.Role, suffix)
	for _, child := range node.Dependencies {
		printTree(w, child, depth+1)
	}
}

func (c *cli) runHistory(ctx context.Context, args []string) error {
	fs := c.flagSet("history")
	limit := fs.Int("limit", 20, "maximum entries to show (0 for all)")
	rest, err := c.parse(fs, args)
	if err != nil {
		return err
	}
	if len(rest) > 1 {
		return NewInvalidArgumentError(strings.Join(rest, " "), "history takes at most one role")
	}
	filter := ledger.Filter{Limit: *limit}
	if len(rest) == 1 {
		filter.Role = rest[0]
	}

	store, err := c.openLedger()
	if err != nil {
		return err
	}
	defer store.Close()
	entries, err := store.List(ctx, filter)
	if err != nil {
		return err
	}

	if c.json {
		if entries == nil {
			entries = []ledger.Entry{}
		}
		return writeJSON(c.stdout, entries)
	}
	tw := newTabWriter(c.stdout)
	writeRow(tw, "RECORDED", "ROLE", "ALGORITHM", "DIGEST", "FILES")
	for _, e := range entries {
		writeRow(tw, formatTime(e.RecordedAt), e.Role, string(e.Algorithm), e.Digest, fmt.Sprint(e.Files))
	}
	return tw.Flush()
}

func (c *cli) openLedger() (*ledger.SQLiteStore, error) {
	store, err := ledger.Open(c.cfg.Ledger.DSN)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("ledger opened", "dsn", c.cfg.Ledger.DSN)
	return store, nil
}

func (c *cli) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage of stevedore %s:\n%s", name, fs.FlagUsages())
	}
	return fs
}

func (c *cli) parse(fs *pflag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return nil, errHelp
		}
		return nil, NewInvalidArgumentError(fs.Name(), err.Error())
	}
	return fs.Args(), nil
}

func (c *cli) writeDocument(doc *role.Document) error {
	if c.json {
		m, err := doc.Map()
		if err != nil {
			return err
		}
		return writeJSON(c.stdout, m)
	}
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	_, err = c.stdout.Write(data)
	return err
}

func singleArg(args []string, what string) (string, error) {
	if len(args) != 1 {
		return "", NewInvalidArgumentError(what, fmt.Sprintf("expected exactly one %s, got %d arguments", what, len(args)))
	}
	return args[0], nil
}

// parseAssignment splits key=value and decodes the value as YAML, falling
// back to the raw string.
func parseAssignment(raw string) (string, any, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, NewInvalidArgumentError(raw, "expected key=value")
	}
	var decoded any
	if err := yaml.Unmarshal([]byte(value), &decoded); err != nil {
		return key, value, nil
	}
	return key, decoded, nil
}
