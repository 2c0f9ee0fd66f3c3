// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

// Package imageconfig translates a role's container metadata
// (meta/container.yml) into the image configuration block stored in a built
// image.
package imageconfig

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jllopis/stevedore/pkg/errors"
)

// ImageConfig is the fixed-shape image configuration. Field names follow the
// image config JSON document.
type ImageConfig struct {
	Hostname     string              `json:"Hostname"`
	Domainname   string              `json:"Domainname"`
	User         string              `json:"User"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts"`
	Env          []string            `json:"Env"`
	Cmd          []string            `json:"Cmd"`
	WorkingDir   string              `json:"WorkingDir"`
	Entrypoint   []string            `json:"Entrypoint"`
	Volumes      map[string]struct{} `json:"Volumes"`
	Labels       map[string]string   `json:"Labels"`
	OnBuild      []string            `json:"OnBuild"`
}

// Default returns the configuration used for keys the metadata omits.
func Default() ImageConfig {
	return ImageConfig{
		ExposedPorts: map[string]struct{}{},
		Env:          []string{},
		Cmd:          []string{},
		Volumes:      map[string]struct{}{},
		Labels:       map[string]string{},
		OnBuild:      []string{},
	}
}

// translator maps one metadata key onto one image config field.
type translator struct {
	source string
	target string
	apply  func(cfg *ImageConfig, value any) error
}

var translators = []translator{
	{"hostname", "Hostname", func(c *ImageConfig, v any) (err error) { c.Hostname, err = toString(v); return }},
	{"domainname", "Domainname", func(c *ImageConfig, v any) (err error) { c.Domainname, err = toString(v); return }},
	{"user", "User", func(c *ImageConfig, v any) (err error) { c.User, err = toString(v); return }},
	{"ports", "ExposedPorts", func(c *ImageConfig, v any) (err error) { c.ExposedPorts, err = exposedPorts(v); return }},
	{"environment", "Env", func(c *ImageConfig, v any) (err error) { c.Env, err = environment(v); return }},
	{"command", "Cmd", func(c *ImageConfig, v any) (err error) { c.Cmd, err = command(v); return }},
	{"working_dir", "WorkingDir", func(c *ImageConfig, v any) (err error) { c.WorkingDir, err = toString(v); return }},
	{"entrypoint", "Entrypoint", func(c *ImageConfig, v any) (err error) { c.Entrypoint, err = command(v); return }},
	{"volumes", "Volumes", func(c *ImageConfig, v any) (err error) { c.Volumes, err = volumes(v); return }},
	{"labels", "Labels", func(c *ImageConfig, v any) (err error) { c.Labels, err = labels(v); return }},
	{"onbuild", "OnBuild", func(c *ImageConfig, v any) (err error) { c.OnBuild, err = stringList(v); return }},
}

// Translate builds an image configuration from metadata. Keys without a
// translator are ignored; absent keys keep the Default values.
func Translate(metadata map[string]any) (ImageConfig, error) {
	cfg := Default()
	for _, tr := range translators {
		value, ok := metadata[tr.source]
		if !ok || value == nil {
			continue
		}
		if err := tr.apply(&cfg, value); err != nil {
			return ImageConfig{}, errors.New(errors.CodeInvalidInput,
				fmt.Sprintf("translate metadata key %q", tr.source), err).
				WithContext("key", tr.source).
				WithContext("target", tr.target)
		}
	}
	return cfg, nil
}

// exposedPorts accepts "container", "host:container", "ip:host:container"
// and "low-high" ranges, each optionally suffixed with "/proto".
func exposedPorts(value any) (map[string]struct{}, error) {
	specs, err := stringList(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		exposed := strings.TrimSpace(parts[len(parts)-1])
		proto := ""
		if i := strings.Index(exposed, "/"); i >= 0 {
			exposed, proto = exposed[:i], exposed[i:]
		}
		low, high, err := portRange(exposed)
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", spec, err)
		}
		for port := low; port <= high; port++ {
			out[strconv.Itoa(port)+proto] = struct{}{}
		}
	}
	return out, nil
}

func portRange(spec string) (int, int, error) {
	lowText, highText, isRange := strings.Cut(spec, "-")
	low, err := parsePort(lowText)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return low, low, nil
	}
	high, err := parsePort(highText)
	if err != nil {
		return 0, 0, err
	}
	if high < low {
		return 0, 0, fmt.Errorf("range end %d is below start %d", high, low)
	}
	return low, high, nil
}

func parsePort(text string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("invalid port number %q", text)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// environment turns a mapping into KEY=VALUE entries sorted by key; a list
// is taken as already formatted.
func environment(value any) ([]string, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return stringList(value)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v := ""
		if m[k] != nil {
			s, err := toString(m[k])
			if err != nil {
				return nil, fmt.Errorf("environment %s: %w", k, err)
			}
			v = s
		}
		out = append(out, k+"="+v)
	}
	return out, nil
}

// volumes keys each entry by its first whitespace-delimited token.
func volumes(value any) (map[string]struct{}, error) {
	specs, err := stringList(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		fields := strings.Fields(spec)
		if len(fields) == 0 {
			continue
		}
		out[fields[0]] = struct{}{}
	}
	return out, nil
}

// command accepts the exec form (list) or a string split on whitespace.
func command(value any) ([]string, error) {
	if s, ok := value.(string); ok {
		return strings.Fields(s), nil
	}
	return stringList(value)
}

// labels accepts a mapping or a list of key=value entries.
func labels(value any) (map[string]string, error) {
	out := map[string]string{}
	if m, ok := value.(map[string]any); ok {
		for k, v := range m {
			s, err := toString(v)
			if err != nil {
				return nil, fmt.Errorf("label %s: %w", k, err)
			}
			out[k] = s
		}
		return out, nil
	}
	entries, err := stringList(value)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		k, v, _ := strings.Cut(entry, "=")
		out[k] = v
	}
	return out, nil
}

func stringList(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := toString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
}

func toString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("expected a scalar, got %T", value)
	}
}
