package main

import (
	"fmt"

	"github.com/nvandessel/cellgraph/internal/scenario"
	"github.com/nvandessel/cellgraph/internal/store"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario and print the final topology",
		Long: `Execute a YAML scenario against a fresh world, check its expectations and
print the resulting topology.

Scenarios run on an in-memory store unless --persist is given, in which case
the configured store is used and the world is saved when the scenario ends.

Examples:
  cellgraph run split.yaml
  cellgraph run split.yaml --format dot | dot -Tsvg > split.svg
  cellgraph run split.yaml --persist`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			persist, _ := cmd.Flags().GetBool("persist")
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			sc, err := scenario.LoadFile(args[0])
			if err != nil {
				return err
			}

			backend := store.BackendMemory
			if persist {
				backend = a.backend()
			}
			st, err := a.openStore(backend)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			res, runErr := scenario.NewRunner(st, a.worldOptions()...).WithLogger(a.logger).Run(ctx, sc)
			if res != nil {
				if err := render(cmd.OutOrStdout(), res.Topology, format); err != nil {
					return err
				}
			}
			if runErr != nil {
				return fmt.Errorf("scenario %q: %w", sc.Name, runErr)
			}

			if persist {
				if err := res.World.Save(ctx); err != nil {
					return fmt.Errorf("save world: %w", err)
				}
			}
			a.logger.Info("scenario passed", "scenario", sc.Name, "steps", res.Steps, "graphs", res.Topology.Len())
			return nil
		},
	}

	cmd.Flags().String("format", "text", "Output format: text, dot, json")
	cmd.Flags().Bool("persist", false, "Run against the configured store and save at the end")
	return cmd
}
