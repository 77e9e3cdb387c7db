package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zhubert/arbor/internal/conflict"
	"github.com/zhubert/arbor/internal/logger"
	"github.com/zhubert/arbor/internal/notification"
	"github.com/zhubert/arbor/internal/ui"
	"github.com/zhubert/arbor/internal/worktree"
)

var mergeTarget string

var conflictsCmd = &cobra.Command{
	Use:   "conflicts [session-id...]",
	Short: "Predict files that more than one session changed",
	Long: `Compares the files each session's branch changed since it diverged from
the default branch. With no ids, every active, paused and completed session is
checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			conflicts, err := m.DetectConflicts(cmd.Context(), args)
			if err != nil {
				return err
			}
			if jsonOutput {
				if conflicts == nil {
					conflicts = []conflict.Conflict{}
				}
				return printJSON(cmd.OutOrStdout(), conflicts)
			}
			if len(conflicts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessStyle.Render("No conflicts."))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.ConflictTable(conflicts))
			return nil
		})
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <session-id>...",
	Short: "Merge sessions into the target branch, all or nothing",
	Long: `Merges each session's branch into the target with --no-ff, in order.
Predicted conflicts block the batch before anything changes. If a merge step
fails, the target is reset to where it was before the batch.

Exits 1 when the merge is blocked by conflicts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVar(&mergeTarget, "target", "", "Branch to merge into (default: the repository's default branch)")
	rootCmd.AddCommand(conflictsCmd, mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withManager(func(m *worktree.Manager) error {
		result, err := m.MergeSessions(cmd.Context(), args, mergeTarget)
		if result == nil {
			return err
		}

		if jsonOutput {
			if perr := printJSON(out, result); perr != nil {
				return perr
			}
		} else {
			fmt.Fprint(out, ui.MergeSummary(result))
		}

		switch {
		case err != nil:
			if jsonOutput {
				return err
			}
			return errSilent
		case result.HasConflicts():
			notify(func() error {
				return notification.ConflictsDetected(result.TargetBranch, conflict.Paths(result.Conflicts))
			})
			return errSilent
		default:
			notify(func() error {
				return notification.MergeCompleted(result.TargetBranch, result.SourceBranches)
			})
			return nil
		}
	})
}

// notify sends a desktop notification when enabled. Failures only log.
func notify(send func() error) {
	if !settings.Notifications {
		return
	}
	if err := send(); err != nil {
		logger.Debug("notification not delivered: %v", err)
	}
}
