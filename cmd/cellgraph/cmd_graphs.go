package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/nvandessel/cellgraph/internal/store"
	"github.com/nvandessel/cellgraph/internal/visualization"
	"github.com/spf13/cobra"
)

func newGraphsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graphs",
		Short: "List graphs persisted in the configured store",
		Long:  `Load every persisted graph and print a summary (text) or the full topology (dot, json).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			st, err := a.openStore(a.backend())
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := loadManager(cmd.Context(), st)
			if err != nil {
				return err
			}

			if format != visualization.FormatText {
				return render(cmd.OutOrStdout(), m.Snapshot(), format)
			}

			out := cmd.OutOrStdout()
			stats := m.Stats()
			fmt.Fprintf(out, "%d graph(s), %d cell(s), largest %d\n", stats.Graphs, stats.Cells, stats.LargestSize)
			if stats.Graphs == 0 {
				return nil
			}
			fmt.Fprintln(out)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCELLS\tKINDS")
			for _, v := range m.Snapshot().Graphs() {
				fmt.Fprintf(w, "%s\t%d\t%s\n", v.ID, v.Size(), kindSummary(v))
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("format", "text", "Output format: text, dot, json")
	return cmd
}

func loadManager(ctx context.Context, st store.Store) (*cells.Manager, error) {
	m := cells.NewManager()
	if err := m.LoadAll(ctx, st); err != nil {
		return nil, fmt.Errorf("load graphs: %w", err)
	}
	return m, nil
}

// kindSummary lists cell kinds in order of first appearance with counts.
func kindSummary(v *cells.GraphView) string {
	counts := map[string]int{}
	var order []string
	for _, c := range v.Cells {
		if counts[c.Kind] == 0 {
			order = append(order, c.Kind)
		}
		counts[c.Kind]++
	}
	s := ""
	for i, k := range order {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s x%d", k, counts[k])
	}
	return s
}
