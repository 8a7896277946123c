package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/logging"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the topology event log written next to the store",
		Long: `Read topology.jsonl, which durable runs write at log level debug or trace,
and print its events oldest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			graph, _ := cmd.Flags().GetString("graph")
			kind, _ := cmd.Flags().GetString("kind")

			var graphID uuid.UUID
			if graph != "" {
				id, err := uuid.Parse(graph)
				if err != nil {
					return fmt.Errorf("invalid graph id %q: %w", graph, err)
				}
				graphID = id
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			path, err := a.storePath(a.backend())
			if err != nil {
				return err
			}
			f, err := os.Open(filepath.Join(filepath.Dir(path), "topology.jsonl"))
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no topology events next to %s; run with --log-level debug", path)
			}
			if err != nil {
				return err
			}
			defer f.Close()

			all, err := logging.ReadEvents(f)
			if err != nil {
				return err
			}
			events := all[:0]
			for _, ev := range all {
				if kind != "" && string(ev.Kind) != kind {
					continue
				}
				if graphID != uuid.Nil && !involves(ev, graphID) {
					continue
				}
				events = append(events, ev)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tEVENT\tGRAPH\tSIZE\tDETAIL")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", ev.Time.Format(time.RFC3339), ev.Kind, ev.Graph, ev.Size, eventDetail(ev))
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("graph", "", "Only events touching this graph")
	cmd.Flags().String("kind", "", "Only events of this kind (insert, remove, merge, split)")
	return cmd
}

// involves reports whether ev changed graph id.
func involves(ev logging.TopologyEvent, id uuid.UUID) bool {
	return ev.Graph == id || slices.Contains(ev.Absorbed, id) || slices.Contains(ev.Created, id)
}

func eventDetail(ev logging.TopologyEvent) string {
	switch ev.Kind {
	case logging.EventInsert, logging.EventRemove:
		return fmt.Sprintf("%s at %s, %d neighbor(s)", ev.Cell, ev.Locator, ev.Neighbors)
	case logging.EventMerge:
		return "absorbed " + joinIDs(ev.Absorbed)
	case logging.EventSplit:
		return "created " + joinIDs(ev.Created)
	}
	return ""
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
