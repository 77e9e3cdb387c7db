package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zhubert/arbor/internal/api"
	"github.com/zhubert/arbor/internal/logger"
	"github.com/zhubert/arbor/internal/worktree"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API over HTTP",
	Long: `Serves the session operations as a JSON HTTP API so agents running as
separate processes can create, record, and merge sessions. Set api_key (or
ARBOR_API_KEY) to require a bearer token. Stops gracefully on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := serveAddr
		if addr == "" {
			addr = settings.Addr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withManager(func(m *worktree.Manager) error {
			log := logger.ComponentLogger("api")
			router := api.NewRouter(m, api.Options{
				APIKey: settings.APIKey,
				Notify: settings.Notifications,
				Logger: log,
			})
			return api.Serve(ctx, addr, router, log, func(a net.Addr) {
				fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", m.RepoPath(), a)
			})
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from settings, 127.0.0.1:8742)")
	rootCmd.AddCommand(serveCmd)
}
