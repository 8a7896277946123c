package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after applying the config file and environment
overrides.

Configuration is read from ~/.cellgraph/config.yaml (or --config). Environment
variables CELLGRAPH_LOG_LEVEL, CELLGRAPH_STORE_BACKEND, CELLGRAPH_STORE_PATH,
CELLGRAPH_ALLOW_DIAGONAL_WRAP and CELLGRAPH_CHUNK_SIZE take precedence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), a.cfg)
			}
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
