package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"stubgen/internal/codegen"
	"stubgen/internal/layout"
)

const configFileName = "stubgen.toml"

type projectConfig struct {
	Codegen codegenConfig `toml:"codegen"`
	Build   buildConfig   `toml:"build"`
	Trace   traceConfig   `toml:"trace"`
}

type codegenConfig struct {
	Targets   []string `toml:"targets"`
	DebugCode bool     `toml:"debug_code"`
}

type buildConfig struct {
	Jobs     int    `toml:"jobs"`
	Cache    bool   `toml:"cache"`
	CacheDir string `toml:"cache_dir"`
}

type traceConfig struct {
	Level string `toml:"level"`
}

// settings is the configuration in effect: defaults, then stubgen.toml,
// then command-line flags.
type settings struct {
	ConfigPath string
	Targets    []layout.Target
	DebugCode  bool
	Jobs       int
	Cache      bool
	CacheDir   string
	TraceLevel string
}

var current = defaultSettings()

func defaultSettings() settings {
	return settings{
		Targets:    layout.Targets(),
		Cache:      true,
		TraceLevel: "off",
	}
}

func (s settings) codegenOptions() codegen.Options {
	return codegen.Options{DebugCode: s.DebugCode}
}

func errInvalidFlag(flag, value, expected string) error {
	return fmt.Errorf("invalid %s value %q (expected %s)", flag, value, expected)
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// applyConfigFile overlays the keys defined in path onto s.
func applyConfigFile(s *settings, path string) error {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%s: unknown key(s): %s", path, strings.Join(keys, ", "))
	}
	s.ConfigPath = path
	if meta.IsDefined("codegen", "targets") {
		targets, err := parseTargets(cfg.Codegen.Targets)
		if err != nil {
			return fmt.Errorf("%s: codegen.targets: %w", path, err)
		}
		s.Targets = targets
	}
	if meta.IsDefined("codegen", "debug_code") {
		s.DebugCode = cfg.Codegen.DebugCode
	}
	if meta.IsDefined("build", "jobs") {
		if cfg.Build.Jobs < 0 {
			return fmt.Errorf("%s: build.jobs must not be negative", path)
		}
		s.Jobs = cfg.Build.Jobs
	}
	if meta.IsDefined("build", "cache") {
		s.Cache = cfg.Build.Cache
	}
	if meta.IsDefined("build", "cache_dir") {
		dir := cfg.Build.CacheDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		s.CacheDir = dir
	}
	if meta.IsDefined("trace", "level") {
		s.TraceLevel = cfg.Trace.Level
	}
	return nil
}

func parseTargets(names []string) ([]layout.Target, error) {
	if len(names) == 0 {
		return nil, errors.New("no targets listed")
	}
	seen := make(map[string]bool, len(names))
	out := make([]layout.Target, 0, len(names))
	for _, name := range names {
		t, err := layout.TargetByName(name)
		if err != nil {
			return nil, err
		}
		if seen[t.Triple] {
			continue
		}
		seen[t.Triple] = true
		out = append(out, t)
	}
	return out, nil
}

// loadSettings resolves current from stubgen.toml and the root flags.
// Subcommand flags are applied by each command.
func loadSettings(cmd *cobra.Command) error {
	s := defaultSettings()
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return err
	}
	found := path != ""
	if !found {
		path, found, err = findConfig(".")
		if err != nil {
			return err
		}
	}
	if found {
		if err := applyConfigFile(&s, path); err != nil {
			return err
		}
	}
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("trace-level") {
		if s.TraceLevel, err = flags.GetString("trace-level"); err != nil {
			return err
		}
	}
	current = s
	return nil
}

// applyTargetFlag overrides the configured targets when --target is set.
func applyTargetFlag(cmd *cobra.Command, s *settings) error {
	if !cmd.Flags().Changed("target") {
		return nil
	}
	names, err := cmd.Flags().GetStringSlice("target")
	if err != nil {
		return err
	}
	targets, err := parseTargets(names)
	if err != nil {
		return err
	}
	s.Targets = targets
	return nil
}

// applyDebugFlag overrides debug_code when --debug-code is set.
func applyDebugFlag(cmd *cobra.Command, s *settings) error {
	if !cmd.Flags().Changed("debug-code") {
		return nil
	}
	debug, err := cmd.Flags().GetBool("debug-code")
	if err != nil {
		return err
	}
	s.DebugCode = debug
	return nil
}
