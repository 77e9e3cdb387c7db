package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zhubert/arbor/internal/git"
	"github.com/zhubert/arbor/internal/ui"
	"github.com/zhubert/arbor/internal/worktree"
)

var noColor bool

var worktreesCmd = &cobra.Command{
	Use:   "worktrees",
	Short: "List the repository's git worktrees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			list, err := m.ListWorktrees(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				if list == nil {
					list = []git.WorktreeInfo{}
				}
				return printJSON(cmd.OutOrStdout(), list)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.WorktreeTable(list))
			return nil
		})
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <session-id>",
	Short: "Show a session's changes against its base branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			diff, err := m.Diff(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !noColor {
				diff = ui.HighlightDiff(diff)
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
			return nil
		})
	},
}

func init() {
	diffCmd.Flags().BoolVar(&noColor, "no-color", false, "Print the diff without highlighting")
	rootCmd.AddCommand(worktreesCmd, diffCmd)
}
