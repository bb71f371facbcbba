// Package cli implements the command-line interface for numabench.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/eunmann/numabench/pkg/logging"
)

// Run executes the CLI with the given arguments.
func Run(ctx context.Context, args []string) error {
	cmd := newRootCmd(os.Getenv)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "numabench",
		Short: "Measure memory access latency across NUMA domains",
		Long: `numabench measures the latency of dependent memory loads for a group of
workers, each on its own buffer, and records where every worker ran and where
its memory lived.

Workers run either as goroutines of one process (--workers) or as separate
processes started by a launcher such as srun or mpirun, meeting at a
rendezvous served by rank 0 (--coordinator).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(getenv)
			if err != nil {
				return err
			}
			logging.Init(cfg.Debug, cfg.Human)
			return execute(cmd.Context(), cfg, os.Args)
		},
	}
	f.register(cmd.Flags())
	return cmd
}
