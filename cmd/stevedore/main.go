// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Command stevedore computes role fingerprints, translates container
// metadata into image configuration and scaffolds new roles.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/jllopis/stevedore/pkg/config"
	"github.com/jllopis/stevedore/pkg/role"
	"github.com/jllopis/stevedore/pkg/telemetry"
)

var version = "dev"

type globalFlags struct {
	ConfigPath string
	Profile    string
	Overrides  []string
	RolesPaths []string
	LogLevel   string
	JSON       bool
}

// cli holds the wiring shared by every command.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	json     bool
	cfg      *config.Config
	logger   *slog.Logger
	resolver *role.PathResolver
	metrics  *telemetry.FingerprintMetrics
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	err := c.run(ctx, os.Args[1:])
	stop()
	if err != nil {
		c.printError(err)
		os.Exit(exitCode(err))
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	global, rest, err := parseGlobalFlags(args, c.stderr)
	if err != nil {
		return err
	}
	c.json = global.JSON
	if len(rest) == 0 {
		printUsage(c.stdout)
		return nil
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "help":
		printUsage(c.stdout)
		return nil
	case "version":
		return c.runVersion()
	}

	if err := c.setup(global); err != nil {
		return err
	}
	shutdown, err := telemetry.Setup(ctx, "stevedore", version, telemetry.Config{
		Exporter:     c.cfg.Telemetry.Exporter,
		OTLPEndpoint: c.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: c.cfg.Telemetry.OTLPInsecure,
		Output:       c.stderr,
		RolesPaths:   c.cfg.Roles.Paths,
		Algorithm:    c.cfg.Fingerprint.Algorithm,
	})
	if err != nil {
		return NewConfigError(err, global.ConfigPath)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()
	if m, err := telemetry.NewFingerprintMetrics(); err == nil {
		c.metrics = m
	} else {
		c.logger.Warn("fingerprint metrics disabled", "error", err)
	}

	err = c.dispatch(ctx, cmd, cmdArgs)
	if stderrors.Is(err, errHelp) {
		return nil
	}
	return err
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "fingerprint":
		return c.runFingerprint(ctx, args)
	case "image-config":
		return c.runImageConfig(args)
	case "init-role":
		return c.runInitRole(ctx, args)
	case "metadata":
		return c.runMetadata(args)
	case "defaults":
		return c.runDefaults(args)
	case "deps":
		return c.runDeps(args)
	case "history":
		return c.runHistory(ctx, args)
	default:
		return NewInvalidArgumentError(cmd, fmt.Sprintf("unknown command %q", cmd))
	}
}

func parseGlobalFlags(args []string, stderr io.Writer) (globalFlags, []string, error) {
	var g globalFlags
	fs := pflag.NewFlagSet("stevedore", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.StringVarP(&g.ConfigPath, "config", "c", "", "config file (default ./"+config.DefaultPath+" when present)")
	fs.StringVar(&g.Profile, "profile", "", "config profile overlay")
	fs.StringArrayVar(&g.Overrides, "set", nil, "override a config key (key=value, repeatable)")
	fs.StringSliceVarP(&g.RolesPaths, "roles-path", "r", nil, "directories searched for roles, ahead of roles.paths")
	fs.StringVar(&g.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&g.JSON, "json", false, "JSON output")
	fs.Usage = func() {}
	if err := fs.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return g, []string{"help"}, nil
		}
		return g, nil, NewInvalidArgumentError("flags", err.Error())
	}
	return g, fs.Args(), nil
}

func (c *cli) setup(g globalFlags) error {
	path := g.ConfigPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}
	overrides := g.Overrides
	if g.LogLevel != "" {
		overrides = append(overrides, "log.level="+g.LogLevel)
	}
	cfg, err := config.LoadWith(config.LoadOptions{Path: path, Profile: g.Profile, Overrides: overrides})
	if err != nil {
		return NewConfigError(err, path)
	}
	cfg.Roles.Paths = append(append([]string(nil), g.RolesPaths...), cfg.Roles.Paths...)

	c.cfg = cfg
	c.logger = telemetry.NewLogger(c.stderr, cfg.Log.Level, cfg.Log.Format)
	c.resolver = role.NewPathResolver(cfg.Roles.Paths...)
	c.logger.Debug("configuration loaded", "path", path, "roles_paths", cfg.Roles.Paths)
	return nil
}

func (c *cli) runVersion() error {
	if c.json {
		return writeJSON(c.stdout, map[string]string{"version": version})
	}
	_, err := fmt.Fprintf(c.stdout, "stevedore %s\n", version)
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `stevedore - container role utilities

Usage:
  stevedore [global flags] <command> [args]

Global flags:
  -c, --config <path>       Config file (default ./stevedore.yaml when present)
      --profile <name>      Profile overlay (stevedore.<name>.yaml)
      --set key=value       Override config (repeatable)
  -r, --roles-path <dir>    Extra role search directory (repeatable)
      --log-level <level>   debug, info, warn, error
      --json                JSON output

Commands:
  fingerprint [--record] [--check] [--algorithm a] <role>...
  image-config <role>
  init-role [--name n] [--project p] [--description d] <path>
  metadata [--set key=value] <role>
  defaults <role>
  deps <role>
  history [--limit n] [role]
  version
`)
}

// exitCode maps errors to process exit status: 2 for usage errors, 1 otherwise.
func exitCode(err error) int {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) && cliErr.Usage {
		return 2
	}
	return 1
}
