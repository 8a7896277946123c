package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/spf13/cobra"
)

type connectionOutput struct {
	Remote  string `json:"remote"`
	Locator string `json:"locator"`
	Mode    string `json:"mode"`
}

type cellOutput struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Locator     string             `json:"locator"`
	Directions  []string           `json:"directions,omitempty"`
	Connections []connectionOutput `json:"connections"`
}

type graphOutput struct {
	ID    string       `json:"id"`
	Size  int          `json:"size"`
	Cells []cellOutput `json:"cells"`
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <graph-id>",
		Short: "Print a persisted graph's cells and connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid graph id %q: %w", args[0], err)
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

			g, err := cells.NewManager().Resolve(cmd.Context(), st, id)
			if err != nil {
				return fmt.Errorf("graph %s: %w", id, err)
			}
			out := describeGraph(g)

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "graph %s (%d cells)\n", out.ID, out.Size)
			for _, c := range out.Cells {
				fmt.Fprintf(w, "\n%s %s\n  id: %s\n", c.Kind, c.Locator, c.ID)
				if len(c.Directions) > 0 {
					fmt.Fprintf(w, "  directions: %v\n", c.Directions)
				}
				for _, conn := range c.Connections {
					fmt.Fprintf(w, "  %-7s -> %s\n", conn.Mode, conn.Locator)
				}
			}
			return nil
		},
	}
}

func describeGraph(g *cells.Graph) graphOutput {
	out := graphOutput{ID: g.ID().String(), Size: g.Size()}
	for _, c := range g.Members() {
		co := cellOutput{
			ID:          c.ID().String(),
			Kind:        c.Kind(),
			Locator:     c.Locator().String(),
			Connections: []connectionOutput{},
		}
		for _, d := range c.Directions() {
			co.Directions = append(co.Directions, d.String())
		}
		for _, conn := range c.Connections() {
			remote := connectionOutput{Remote: conn.Remote.String(), Mode: conn.Mode.String()}
			if rc, ok := g.Cell(conn.Remote); ok {
				remote.Locator = rc.Locator().String()
			}
			co.Connections = append(co.Connections, remote)
		}
		out.Cells = append(out.Cells, co)
	}
	return out
}
