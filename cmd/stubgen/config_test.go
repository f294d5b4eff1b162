package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, configFileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestApplyConfigFileOverlaysDefinedKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[codegen]
targets = ["ppc64", "ppc-linux-gnu", "ppc64"]
debug_code = true

[build]
jobs = 3
cache_dir = "cache"
`)
	s := defaultSettings()
	if err := applyConfigFile(&s, path); err != nil {
		t.Fatalf("applyConfigFile: %v", err)
	}
	if len(s.Targets) != 2 {
		t.Fatalf("expected 2 deduplicated targets, got %d", len(s.Targets))
	}
	if s.Targets[0].Triple != "ppc64-linux-gnu" || s.Targets[1].Triple != "ppc-linux-gnu" {
		t.Fatalf("unexpected targets %v, %v", s.Targets[0].Triple, s.Targets[1].Triple)
	}
	if !s.DebugCode || s.Jobs != 3 {
		t.Fatalf("unexpected settings %+v", s)
	}
	if !s.Cache {
		t.Fatalf("cache default lost when key is not defined")
	}
	if s.CacheDir != filepath.Join(dir, "cache") {
		t.Fatalf("cache_dir not resolved against config dir: %q", s.CacheDir)
	}
	if s.ConfigPath != path {
		t.Fatalf("config path not recorded: %q", s.ConfigPath)
	}
	if !s.codegenOptions().DebugCode {
		t.Fatalf("debug_code not carried into codegen options")
	}
}

func TestApplyConfigFileRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[codegen]\ntargetz = [\"ppc64\"]\n")
	s := defaultSettings()
	err := applyConfigFile(&s, path)
	if err == nil || !strings.Contains(err.Error(), "codegen.targetz") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestApplyConfigFileRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown target": "[codegen]\ntargets = [\"x86_64\"]\n",
		"empty targets":  "[codegen]\ntargets = []\n",
		"negative jobs":  "[build]\njobs = -1\n",
		"bad toml":       "[codegen\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), body)
			s := defaultSettings()
			if err := applyConfigFile(&s, path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestFindConfigWalksUpward(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, "[build]\ncache = false\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, ok, err := findConfig(nested)
	if err != nil || !ok {
		t.Fatalf("findConfig: ok=%v err=%v", ok, err)
	}
	if got != path {
		t.Fatalf("found %q, want %q", got, path)
	}
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, " on ": uiModeOn, "off": uiModeOff} {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Fatalf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Fatalf("expected error for invalid mode")
	}
	if !shouldUseTUI(uiModeOn, true) || shouldUseTUI(uiModeOff, false) {
		t.Fatalf("explicit ui modes must win")
	}
}
