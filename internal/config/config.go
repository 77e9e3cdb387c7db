// Package config loads arbor's per-repository settings.
//
// Settings come from a YAML file (by default .arbor.yaml in the repository
// root), then ARBOR_* environment variables, and are validated last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/arbor/internal/errors"
	"github.com/zhubert/arbor/internal/logger"
)

// FileName is the settings file looked up in the repository root.
const FileName = ".arbor.yaml"

const (
	DefaultWorktreesDir = ".worktrees"
	DefaultGitBinary    = "git"
	DefaultStore        = "json"
	DefaultLogLevel     = "info"
	DefaultMergeMessage = "Merge {branch} into {target} (session {session})"
	DefaultAddr         = "127.0.0.1:8742"
)

// Settings holds arbor's configuration.
type Settings struct {
	WorktreesDir  string `yaml:"worktrees_dir"`
	GitBinary     string `yaml:"git_binary"`
	Store         string `yaml:"store"`
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	MergeMessage  string `yaml:"merge_message"`
	Notifications bool   `yaml:"notifications"`
	Addr          string `yaml:"addr"`
	APIKey        string `yaml:"api_key"`

	path string
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		WorktreesDir: DefaultWorktreesDir,
		GitBinary:    DefaultGitBinary,
		Store:        DefaultStore,
		LogLevel:     DefaultLogLevel,
		LogFile:      DefaultLogFile(),
		MergeMessage: DefaultMergeMessage,
		Addr:         DefaultAddr,
	}
}

// DefaultLogFile returns ~/.arbor/logs/arbor.log, or the logger's
// fallback when the home directory is unknown.
func DefaultLogFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return logger.DefaultLogPath
	}
	return filepath.Join(home, ".arbor", "logs", "arbor.log")
}

// Load reads settings for the repository at repoRoot. An explicit path
// must exist; the implicit {repoRoot}/.arbor.yaml may be absent.
func Load(path, repoRoot string) (*Settings, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(repoRoot, FileName)
	}

	s := Default()
	s.path = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
	case err != nil:
		return nil, errors.ConfigLoadFailed(path, err)
	default:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, errors.ConfigLoadFailed(path, err)
		}
	}

	s.applyEnv()
	s.fillDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file the settings were read from (it may not exist).
func (s *Settings) Path() string { return s.path }

// applyEnv overlays ARBOR_* environment variables.
func (s *Settings) applyEnv() {
	s.WorktreesDir = envStr("ARBOR_WORKTREES_DIR", s.WorktreesDir)
	s.GitBinary = envStr("ARBOR_GIT_BINARY", s.GitBinary)
	s.Store = envStr("ARBOR_STORE", s.Store)
	s.LogLevel = envStr("ARBOR_LOG_LEVEL", s.LogLevel)
	s.LogFile = envStr("ARBOR_LOG_FILE", s.LogFile)
	s.MergeMessage = envStr("ARBOR_MERGE_MESSAGE", s.MergeMessage)
	s.Addr = envStr("ARBOR_ADDR", s.Addr)
	s.APIKey = envStr("ARBOR_API_KEY", s.APIKey)
	s.Notifications = envBool("ARBOR_NOTIFY", s.Notifications)
}

// fillDefaults restores defaults for keys a file set to empty.
func (s *Settings) fillDefaults() {
	d := Default()
	if s.WorktreesDir == "" {
		s.WorktreesDir = d.WorktreesDir
	}
	if s.GitBinary == "" {
		s.GitBinary = d.GitBinary
	}
	if s.Store == "" {
		s.Store = d.Store
	}
	if s.LogLevel == "" {
		s.LogLevel = d.LogLevel
	}
	if s.LogFile == "" {
		s.LogFile = d.LogFile
	}
	if s.MergeMessage == "" {
		s.MergeMessage = d.MergeMessage
	}
	if s.Addr == "" {
		s.Addr = d.Addr
	}
	s.Store = strings.ToLower(s.Store)
}

// Validate checks values that would otherwise fail later and obscurely.
func (s *Settings) Validate() error {
	switch s.Store {
	case "json", "sqlite":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("store must be json or sqlite, got %q", s.Store))
	}
	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("log_level: %v", err))
	}
	if !strings.Contains(s.MergeMessage, "{branch}") && !strings.Contains(s.MergeMessage, "{session}") {
		return errors.ConfigInvalid("merge_message must reference {branch} or {session}")
	}
	if _, port, ok := strings.Cut(s.Addr, ":"); !ok || port == "" {
		return errors.ConfigInvalid(fmt.Sprintf("addr must be host:port, got %q", s.Addr))
	}
	return nil
}

// ResolveWorktreesDir returns the absolute worktrees directory for repoRoot.
func (s *Settings) ResolveWorktreesDir(repoRoot string) string {
	dir := s.WorktreesDir
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(repoRoot, dir)
}

// Write saves the settings as YAML to path.
func (s *Settings) Write(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.E(errors.Op("config.Write"), errors.KindConfig, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.E(errors.Op("config.Write"), errors.KindIO, fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
