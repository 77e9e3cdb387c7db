package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zhubert/arbor/internal/session"
	"github.com/zhubert/arbor/internal/ui"
	"github.com/zhubert/arbor/internal/worktree"
)

var (
	baseBranch    string
	filterFeature string
	filterAgent   string
	filterStatus  string
)

var createCmd = &cobra.Command{
	Use:   "create <feature> <agent>",
	Short: "Create (or return) the session for an agent on a feature",
	Long: `Creates branch feature/<feature>-<agent> from the base branch and checks it
out in its own worktree. Creating a session that is already live returns it
unchanged.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			s, err := m.CreateSession(cmd.Context(), args[0], args[1], baseBranch)
			if err != nil {
				return err
			}
			return printSession(cmd, s, "Session %s ready at %s", s.ID, s.Path)
		})
	},
}

// transitionCmd builds pause/resume/complete, which differ only in the
// Manager call.
func transitionCmd(use, short, verb string, fn func(m *worktree.Manager, id string) (*session.Session, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(m *worktree.Manager) error {
				s, err := fn(m, args[0])
				if err != nil {
					return err
				}
				return printSession(cmd, s, "%s session %s", verb, s.ID)
			})
		},
	}
}

var recordFileCmd = &cobra.Command{
	Use:   "record-file <session-id> <path>...",
	Short: "Record files an active session modified",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			s, err := m.RecordFiles(args[0], args[1:]...)
			if err != nil {
				return err
			}
			return printSession(cmd, s, "Session %s now tracks %d file(s)", s.ID, len(s.ModifiedFiles))
		})
	},
}

var recordCommitCmd = &cobra.Command{
	Use:   "record-commit <session-id> <hash> <message>",
	Short: "Record a commit made by an active session",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			s, err := m.RecordCommit(args[0], args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			return printSession(cmd, s, "Session %s now has %d commit(s)", s.ID, len(s.Commits))
		})
	},
}

var setMetaCmd = &cobra.Command{
	Use:   "set-meta <session-id> <key> <value>",
	Short: "Attach a metadata value to a session",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			s, err := m.SetMetadata(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printSession(cmd, s, "Set %s on session %s", args[1], s.ID)
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <session-id>",
	Short: "Record the files and commits on a session's branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			s, err := m.SyncSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSession(cmd, s, "Synced session %s: %d file(s), %d commit(s)", s.ID, len(s.ModifiedFiles), len(s.Commits))
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *worktree.Manager) error {
			s, err := m.GetSession(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), s)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.SessionDetail(s, time.Now()))
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := worktree.Filter{FeatureID: filterFeature, AgentID: filterAgent}
		if filterStatus != "" {
			st, err := session.ParseStatus(filterStatus)
			if err != nil {
				return err
			}
			f.Status = st
		}
		return withManager(func(m *worktree.Manager) error {
			list := m.ListSessions(f)
			if jsonOutput {
				if list == nil {
					list = []*session.Session{}
				}
				return printJSON(cmd.OutOrStdout(), list)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.SessionTable(list, time.Now()))
			return nil
		})
	},
}

func init() {
	createCmd.Flags().StringVar(&baseBranch, "base", "", "Branch to start from (default: the repository's default branch)")
	listCmd.Flags().StringVar(&filterFeature, "feature", "", "Only sessions for this feature")
	listCmd.Flags().StringVar(&filterAgent, "agent", "", "Only sessions for this agent")
	listCmd.Flags().StringVar(&filterStatus, "status", "", "Only sessions with this status")

	rootCmd.AddCommand(
		createCmd,
		transitionCmd("pause", "Pause an active session", "Paused",
			func(m *worktree.Manager, id string) (*session.Session, error) { return m.PauseSession(id) }),
		transitionCmd("resume", "Resume a paused session", "Resumed",
			func(m *worktree.Manager, id string) (*session.Session, error) { return m.ResumeSession(id) }),
		transitionCmd("complete", "Mark a session's work finished and ready to merge", "Completed",
			func(m *worktree.Manager, id string) (*session.Session, error) { return m.CompleteSession(id) }),
		recordFileCmd,
		recordCommitCmd,
		setMetaCmd,
		syncCmd,
		showCmd,
		listCmd,
	)
}

// printSession prints s as JSON under --json, otherwise the formatted line.
func printSession(cmd *cobra.Command, s *session.Session, format string, args ...any) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), s)
	}
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
	return nil
}
