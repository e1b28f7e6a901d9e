package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"runnel.dev/pkg/runnel/internal/domain"
	m "runnel.dev/pkg/runnel/internal/model"
)

// errNothingSelected is returned by run without ids and without --all.
var errNothingSelected = errors.New("no runnables selected: pass ids or --all")

var runParallelFlag int
var runTimeoutFlag int64
var runShardFlag string
var runAllFlag bool
var runKindFlags []string
var runPathFlags []string

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [ids...]",
		Short: "Run runnables by id",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !runAllFlag {
				return errNothingSelected
			}

			kinds, err := parseKinds(runKindFlags)
			if err != nil {
				return err
			}

			wf, err := currentWorkflow(cmd)
			if err != nil {
				return err
			}

			shardIndex, totalShards := parseShardFlag(runShardFlag)

			ctx, stop := signalContext(cmd)
			defer stop()

			return wf.Run(ctx, domain.RunArgs{
				Paths:        runPathFlags,
				IDs:          args,
				Kinds:        kinds,
				Parallel:     viper.GetInt(runParallelConfigKey),
				Timeout:      runTimeout(),
				PollInterval: pollInterval(),
				ShardIndex:   shardIndex,
				ShardCount:   totalShards,
				Reports:      m.Path(viper.GetString(outputFlagName)),
				Command:      commandOptions(),
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of runnables running at once")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)
	cmd.Flags().Int64VarP(&runTimeoutFlag, runTimeoutFlagName, "t", viper.GetInt64(runTimeoutConfigKey), "seconds before a runnable is terminated (0 disables)")
	bindFlagToConfig(cmd.Flags().Lookup(runTimeoutFlagName), runTimeoutConfigKey)
	cmd.Flags().StringVarP(&runShardFlag, "shard", "s", "", "shard index and total shard count in the format INDEX/TOTAL (e.g., 0/3)")
	cmd.Flags().BoolVarP(&runAllFlag, "all", "a", false, "run every test, bench and bin")
	cmd.Flags().StringSliceVarP(&runKindFlags, "kind", "k", nil, "only run these kinds: test, bench, bin")
	cmd.Flags().StringArrayVarP(&runPathFlags, "path", "P", nil, "paths to discover crates in (default ./...)")
}

func parseShardFlag(shard string) (int, int) {
	if shard == "" {
		return 0, 1
	}

	var index, total int

	_, err := fmt.Sscanf(shard, "%d/%d", &index, &total)
	if err != nil || total <= 0 || index < 0 || index >= total {
		return 0, 1
	}

	return index, total
}

func parseKinds(values []string) ([]m.FuncKind, error) {
	kinds := make([]m.FuncKind, 0, len(values))

	for _, v := range values {
		switch kind := m.FuncKind(v); kind {
		case m.FuncTest, m.FuncBench, m.FuncBin:
			kinds = append(kinds, kind)
		default:
			return nil, fmt.Errorf("unknown kind %q: want test, bench or bin", v)
		}
	}

	return kinds, nil
}

// signalContext is canceled on interrupt so running processes are aborted.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
