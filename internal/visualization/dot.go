// Package visualization renders topology snapshots in various output formats.
package visualization

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/nvandessel/cellgraph/internal/locator"
)

// Format specifies the output format for topology rendering.
type Format string

const (
	FormatText Format = "text"
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat parses an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatDOT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: text, dot, json)", s)
	}
}

// graphColors cycles through cluster colors by graph order.
var graphColors = []string{
	"steelblue",
	"tomato",
	"mediumseagreen",
	"goldenrod",
	"orchid",
	"slategray",
}

// edgeStyles maps adjacency modes to DOT styles.
var edgeStyles = map[locator.Mode]string{
	locator.Planar:  "solid",
	locator.Inner:   "dashed",
	locator.Wrapped: "dotted",
}

// Edge is one undirected connection, listed once.
type Edge struct {
	Graph  uuid.UUID
	Source uuid.UUID
	Target uuid.UUID
	Mode   locator.Mode
}

// CollectEdges gathers the deduplicated edges of a graph view. Each edge is
// reported from the endpoint with the smaller identity.
func CollectEdges(v *cells.GraphView) []Edge {
	var result []Edge
	for _, c := range v.Cells {
		for _, conn := range c.Connections {
			if strings.Compare(c.ID.String(), conn.Remote.String()) >= 0 {
				continue
			}
			result = append(result, Edge{Graph: v.ID, Source: c.ID, Target: conn.Remote, Mode: conn.Mode})
		}
	}
	return result
}

// RenderDOT produces a Graphviz DOT representation of the topology with one
// cluster per graph.
func RenderDOT(topo *cells.Topology) string {
	var b strings.Builder
	b.WriteString("graph cellgraph {\n")
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")

	for i, v := range topo.Graphs() {
		color := graphColors[i%len(graphColors)]
		fmt.Fprintf(&b, "\n  subgraph %q {\n", "cluster_"+v.ID.String())
		fmt.Fprintf(&b, "    label=%q;\n", fmt.Sprintf("%s (%d)", shortID(v.ID), v.Size()))
		for _, c := range v.Cells {
			fmt.Fprintf(&b, "    %q [label=%q, fillcolor=%q, tooltip=%q];\n",
				c.ID.String(), c.Kind+"\n"+c.Locator.String(), color, c.ID.String())
		}
		for _, e := range CollectEdges(v) {
			style := edgeStyles[e.Mode]
			if style == "" {
				style = "bold"
			}
			fmt.Fprintf(&b, "    %q -- %q [label=%q, style=%s];\n",
				e.Source.String(), e.Target.String(), e.Mode.String(), style)
		}
		b.WriteString("  }\n")
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready representation with graphs and edges arrays.
func RenderJSON(topo *cells.Topology) map[string]interface{} {
	views := topo.Graphs()
	graphs := make([]map[string]interface{}, 0, len(views))
	edges := make([]map[string]interface{}, 0)
	cellCount := 0

	for _, v := range views {
		members := make([]map[string]interface{}, 0, len(v.Cells))
		for _, c := range v.Cells {
			members = append(members, map[string]interface{}{
				"id":      c.ID.String(),
				"kind":    c.Kind,
				"locator": c.Locator.String(),
			})
		}
		cellCount += len(members)
		graphs = append(graphs, map[string]interface{}{
			"id":    v.ID.String(),
			"size":  v.Size(),
			"cells": members,
		})
		for _, e := range CollectEdges(v) {
			edges = append(edges, map[string]interface{}{
				"graph":  e.Graph.String(),
				"source": e.Source.String(),
				"target": e.Target.String(),
				"mode":   e.Mode.String(),
			})
		}
	}

	return map[string]interface{}{
		"version":     topo.Version,
		"graphs":      graphs,
		"edges":       edges,
		"graph_count": len(graphs),
		"cell_count":  cellCount,
		"edge_count":  len(edges),
	}
}

// RenderText writes a human-readable listing of every graph, its cells and
// their connections.
func RenderText(w io.Writer, topo *cells.Topology) error {
	views := topo.Graphs()
	locators := make(map[uuid.UUID]locator.Locator)
	for _, v := range views {
		for _, c := range v.Cells {
			locators[c.ID] = c.Locator
		}
	}

	if _, err := fmt.Fprintf(w, "%d graph(s)\n", len(views)); err != nil {
		return err
	}
	for _, v := range views {
		if _, err := fmt.Fprintf(w, "\ngraph %s (%d cells)\n", v.ID, v.Size()); err != nil {
			return err
		}
		for _, c := range v.Cells {
			if _, err := fmt.Fprintf(w, "  %-8s %s\n", truncate(c.Kind, 8), c.Locator); err != nil {
				return err
			}
			for _, conn := range c.Connections {
				if _, err := fmt.Fprintf(w, "    %-7s -> %s\n", conn.Mode, locators[conn.Remote]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
