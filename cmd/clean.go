package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"charm.land/huh/v2"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"github.com/zhubert/arbor/internal/ui"
	"github.com/zhubert/arbor/internal/worktree"
)

var (
	skipConfirm bool
	cleanupDays int
)

// DefaultCleanupDays is how long a non-active session may sit idle.
const DefaultCleanupDays = 7

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove idle sessions and their worktrees",
	Long: `Removes every session that is not active and has been idle for longer than
--days, force-removing its worktree and dropping its record, then prunes git's
worktree bookkeeping. Active sessions are never removed.

It will prompt for confirmation before proceeding unless the --yes flag is used.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <session-id>",
	Short: "Abandon a session, removing its worktree and branch",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbandon,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", DefaultCleanupDays, "Idle days before a non-active session is removed")
	cleanupCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	abandonCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanupCmd, abandonCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if cleanupDays < 0 {
		return fmt.Errorf("--days must not be negative")
	}
	out := cmd.OutOrStdout()
	return withManager(func(m *worktree.Manager) error {
		stale, err := m.StaleSessions(cleanupDays)
		if err != nil {
			return err
		}
		if len(stale) > 0 {
			fmt.Fprintln(out, "This will remove:")
			fmt.Fprint(out, ui.SessionTable(stale, time.Now()))
		}

		if len(stale) > 0 && !skipConfirm {
			ok, err := askConfirm(cmd, "Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}

		// Cleanup also prunes stale worktree metadata, so it runs even when
		// no session is stale.
		removed, err := m.Cleanup(cmd.Context(), cleanupDays)
		if err != nil {
			return err
		}
		if removed == 0 {
			fmt.Fprintln(out, "Nothing to clean.")
			return nil
		}
		fmt.Fprintf(out, "Removed %d session(s).\n", removed)
		return nil
	})
}

func runAbandon(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withManager(func(m *worktree.Manager) error {
		s, err := m.GetSession(args[0])
		if err != nil {
			return err
		}
		if !skipConfirm {
			ok, err := askConfirm(cmd, fmt.Sprintf("Abandon %s and delete branch %s?", s.ID, s.Branch))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}
		s, err = m.AbandonSession(cmd.Context(), s.ID)
		if err != nil {
			return err
		}
		return printSession(cmd, s, "Abandoned session %s", s.ID)
	})
}

// askConfirm uses an interactive prompt on a terminal and a plain y/N line
// otherwise.
func askConfirm(cmd *cobra.Command, prompt string) (bool, error) {
	in := cmd.InOrStdin()
	if f, isFile := in.(*os.File); isFile && term.IsTerminal(f.Fd()) {
		var ok bool
		err := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		)).Run()
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return ok, err
	}
	return confirm(in, prompt), nil
}

// confirm prompts the user for y/n confirmation
func confirm(input io.Reader, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Printf("%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
