package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"runnel.dev/pkg/runnel/internal/domain"
	"runnel.dev/pkg/runnel/internal/server"
)

var serveWatchFlag bool

// serve runs the editor server on stdio. Tests replace it.
var serve = func(ctx context.Context, opts server.Options) error {
	ws, err := currentWorkspace()
	if err != nil {
		return err
	}

	srv := server.New(ws, testAdapter, watchAdapter, opts)

	return srv.Serve(ctx, server.Stdio(os.Stdin, os.Stdout))
}

// serveCmd represents the serve command.
var serveCmd = newServeCmd()

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [paths...]",
		Short: "Serve the runnables tree to editors over JSON-RPC",
		Long: `Serve JSON-RPC 2.0 with LSP framing on stdin/stdout. The workspace root sent
with initialize replaces the given paths. With --watch, source changes refresh the
tree and the edits are pushed as runnel/didChange notifications.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			return serve(ctx, server.Options{
				Patterns: args,
				Watch:    serveWatchFlag,
				Executor: domain.ExecutorOptions{
					Command: commandOptions(),
					Timeout: runTimeout(),
				},
			})
		},
	}

	cmd.Flags().BoolVarP(&serveWatchFlag, "watch", "w", false, "refresh on source changes and notify the client")

	return cmd
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
