package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"runnel.dev/pkg/runnel/internal/domain"
	m "runnel.dev/pkg/runnel/internal/model"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "View saved run results",
		Long: `View the results saved by the last run in the reports directory.
Sharded results that were not merged yet are combined on the fly.`,
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := currentWorkflow(cmd)
			if err != nil {
				return err
			}

			reportsPath := m.Path(viper.GetString(outputFlagName))

			return wf.View(cmd.Context(), domain.ViewArgs{Reports: reportsPath})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
