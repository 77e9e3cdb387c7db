package cmd

import (
	"testing"

	"github.com/zhubert/arbor/internal/logger"
)

func TestDebugFlagDefaultFalse(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("debug")
	if flag == nil {
		t.Fatal("--debug flag not found")
	}
	if flag.DefValue != "false" {
		t.Errorf("--debug default = %q, want %q", flag.DefValue, "false")
	}
}

func TestQuietFlagExists(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("quiet")
	if flag == nil {
		t.Fatal("--quiet flag not found")
	}
	if flag.DefValue != "false" {
		t.Errorf("--quiet default = %q, want %q", flag.DefValue, "false")
	}
	if flag.Shorthand != "q" {
		t.Errorf("--quiet shorthand = %q, want %q", flag.Shorthand, "q")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{
		"create", "pause", "resume", "complete", "abandon", "record-file", "record-commit",
		"set-meta", "sync", "show", "list", "conflicts", "merge", "cleanup", "worktrees",
		"diff", "serve", "init",
	} {
		if c, _, err := rootCmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestApplyLogLevel(t *testing.T) {
	origDebug, origQuiet := debugMode, quietMode
	defer func() {
		debugMode, quietMode = origDebug, origQuiet
		logger.Reset()
	}()

	tests := []struct {
		name         string
		debug, quiet bool
	}{
		{"configured", false, false},
		{"debug", true, false},
		{"quiet overrides debug", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			debugMode, quietMode = tt.debug, tt.quiet
			// Should not panic
			applyLogLevel(logger.LevelInfo)
		})
	}
}

func TestVersionTemplate(t *testing.T) {
	origV, origC, origD := version, commit, date
	defer SetVersionInfo(origV, origC, origD)

	SetVersionInfo("1.2.3", "none", "unknown")
	if got := versionTemplate(); got != "arbor 1.2.3\n" {
		t.Errorf("versionTemplate() = %q", got)
	}
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	if got := versionTemplate(); got != "arbor 1.2.3\n  commit: abc123\n  built:  2026-01-01\n" {
		t.Errorf("versionTemplate() = %q", got)
	}
}
