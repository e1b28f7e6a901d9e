package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"runnel.dev/pkg/runnel/internal/domain"
	m "runnel.dev/pkg/runnel/internal/model"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge sharded run results",
		Long: `Merge the reports of shard_* subdirectories into a single report in the
reports directory. When a runnable was run by several shards the latest result wins.`,
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := currentWorkflow(cmd)
			if err != nil {
				return err
			}

			reportsPath := m.Path(viper.GetString(outputFlagName))

			return wf.Merge(cmd.Context(), domain.MergeArgs{Reports: reportsPath})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
