package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zhubert/arbor/internal/logger"
)

var (
	configPath            string
	repoPath              string
	logFile               string
	debugMode             bool
	quietMode             bool
	jsonOutput            bool
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Coordinate parallel agent sessions in isolated git worktrees",
	Long: `Arbor gives each agent working on a feature its own branch and git worktree,
tracks what every session touches, predicts conflicts between sessions, and
merges finished work back atomically.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Settings file (default {repo}/.arbor.yaml)")
	flags.StringVar(&repoPath, "repo", "", "Repository root (default: the repository containing the working directory)")
	flags.StringVar(&logFile, "log-file", "", "Log file (default ~/.arbor/logs/arbor.log)")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flags.BoolVarP(&quietMode, "quiet", "q", false, "Only log warnings and errors")
	flags.BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// applyLogLevel sets the level from configuration; --quiet wins over --debug.
func applyLogLevel(configured logger.LogLevel) {
	switch {
	case quietMode:
		logger.SetLevel(logger.LevelWarn)
	case debugMode:
		logger.SetDebug(true)
	default:
		logger.SetLevel(configured)
	}
}

// Execute runs the root command
func Execute() error {
	// Set version dynamically
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("arbor %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("arbor %s\n", version)
}

// printJSON writes v indented, for --json.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
