package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zhubert/arbor/internal/config"
	"github.com/zhubert/arbor/internal/git"
	"github.com/zhubert/arbor/internal/logger"
	"github.com/zhubert/arbor/internal/store"
	"github.com/zhubert/arbor/internal/worktree"
)

// errSilent marks a failure whose explanation was already printed.
var errSilent = errors.New("silent failure")

// IsSilent reports whether err was already reported to the user.
func IsSilent(err error) bool {
	return errors.Is(err, errSilent)
}

var (
	settings *config.Settings
	repoRoot string
)

// setup resolves the repository, loads settings and starts logging.
func setup(cmd *cobra.Command, args []string) error {
	root, err := resolveRepo(cmd)
	if err != nil {
		return err
	}
	s, err := config.Load(configPath, root)
	if err != nil {
		return err
	}
	if logFile != "" {
		s.LogFile = logFile
	}
	if err := logger.Init(s.LogFile); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	level, _ := logger.ParseLevel(s.LogLevel)
	applyLogLevel(level)

	settings, repoRoot = s, root
	logger.Debug("arbor %s: repo=%s config=%s store=%s", version, root, s.Path(), s.Store)
	return nil
}

func resolveRepo(cmd *cobra.Command) (string, error) {
	if repoPath != "" {
		return filepath.Abs(repoPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return git.TopLevel(cmd.Context(), git.NewGateway(nil, os.Getenv("ARBOR_GIT_BINARY")), wd)
}

// openManager builds a Manager for the resolved repository from settings.
func openManager() (*worktree.Manager, error) {
	dir := settings.ResolveWorktreesDir(repoRoot)
	st, err := store.Open(settings.Store, dir)
	if err != nil {
		return nil, err
	}
	m, err := worktree.New(worktree.Options{
		RepoPath:     repoRoot,
		WorktreesDir: dir,
		Gateway:      git.NewGateway(nil, settings.GitBinary),
		Store:        st,
		MergeMessage: settings.MergeMessage,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return m, nil
}

// withManager opens a Manager for the duration of fn.
func withManager(fn func(m *worktree.Manager) error) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
