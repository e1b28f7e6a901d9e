package cmd

import (
	"github.com/spf13/cobra"

	"runnel.dev/pkg/runnel/internal/controller"
	"runnel.dev/pkg/runnel/internal/domain"
)

var listFormatFlag string
var listWatchFlag bool

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [paths...]",
		Short: "List tests, benches, binaries and doctests",
		Long:  listLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := controller.ParseFormat(listFormatFlag)
			if err != nil {
				return err
			}

			wf, err := currentWorkflow(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			return wf.List(ctx, domain.ListArgs{
				Paths:  args,
				Format: format,
				Watch:  listWatchFlag,
			})
		},
	}

	cmd.Flags().StringVarP(&listFormatFlag, "format", "f", string(controller.FormatTree), "output format: tree, table, yaml or json")
	cmd.Flags().BoolVarP(&listWatchFlag, "watch", "w", false, "keep running and print changes to the tree")

	return cmd
}

func init() {
	rootCmd.AddCommand(listCmd)
}
