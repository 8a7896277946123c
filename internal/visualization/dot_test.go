package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/nvandessel/cellgraph/internal/locator"
	"github.com/nvandessel/cellgraph/internal/store"
	"github.com/nvandessel/cellgraph/internal/world"
)

// buildTopology creates a line of three blocks, one isolated block and an
// inner connection between two parts: three graphs, six cells, three edges.
func buildTopology(t *testing.T) *cells.Topology {
	t.Helper()
	ctx := context.Background()
	w, err := world.Open(ctx, store.NewMemoryStore())
	if err != nil {
		t.Fatalf("open world: %v", err)
	}
	for _, x := range []int{0, 1, 2, 5} {
		if _, err := w.PlaceBlock(ctx, locator.Pos(x, 0, 0), world.CellSpec{Kind: "wire"}); err != nil {
			t.Fatalf("place block %d: %v", x, err)
		}
	}
	for _, face := range []locator.Direction{locator.Up, locator.North} {
		if _, err := w.PlacePart(ctx, locator.Pos(0, 5, 0), face, world.CellSpec{Kind: "resistance"}); err != nil {
			t.Fatalf("place part %s: %v", face, err)
		}
	}
	return w.Topology()
}

func TestRenderDOT_Empty(t *testing.T) {
	dot := RenderDOT(cells.NewManager().Snapshot())

	if !strings.HasPrefix(dot, "graph cellgraph {") {
		t.Error("expected DOT graph header")
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("expected closing brace")
	}
	if strings.Contains(dot, "subgraph") {
		t.Error("empty topology should have no clusters")
	}
}

func TestRenderDOT(t *testing.T) {
	topo := buildTopology(t)
	dot := RenderDOT(topo)

	if got := strings.Count(dot, "subgraph "); got != 3 {
		t.Errorf("clusters = %d, want 3", got)
	}
	if got := strings.Count(dot, " -- "); got != 3 {
		t.Errorf("edges = %d, want 3", got)
	}
	if !strings.Contains(dot, "style=dashed") {
		t.Error("expected a dashed inner edge")
	}
	if !strings.Contains(dot, "style=solid") {
		t.Error("expected solid planar edges")
	}
	for _, v := range topo.Graphs() {
		if !strings.Contains(dot, "cluster_"+v.ID.String()) {
			t.Errorf("missing cluster for graph %s", v.ID)
		}
	}
}

func TestRenderJSON(t *testing.T) {
	result := RenderJSON(buildTopology(t))

	tests := []struct {
		key  string
		want int
	}{
		{"graph_count", 3},
		{"cell_count", 6},
		{"edge_count", 3},
	}
	for _, tt := range tests {
		if got, ok := result[tt.key].(int); !ok || got != tt.want {
			t.Errorf("%s = %v, want %d", tt.key, result[tt.key], tt.want)
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Graphs []struct {
			ID    string `json:"id"`
			Size  int    `json:"size"`
			Cells []struct {
				Kind string `json:"kind"`
			} `json:"cells"`
		} `json:"graphs"`
		Edges []struct {
			Mode string `json:"mode"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	modes := map[string]int{}
	for _, e := range decoded.Edges {
		modes[e.Mode]++
	}
	if modes["planar"] != 2 || modes["inner"] != 1 {
		t.Errorf("edge modes = %v, want 2 planar and 1 inner", modes)
	}
}

func TestRenderJSON_EmptyHasArrays(t *testing.T) {
	data, err := json.Marshal(RenderJSON(cells.NewManager().Snapshot()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"edges":[]`) || !strings.Contains(string(data), `"graphs":[]`) {
		t.Errorf("expected empty arrays, got %s", data)
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderText(&buf, buildTopology(t)); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "3 graph(s)\n") {
		t.Errorf("unexpected header: %q", strings.SplitN(out, "\n", 2)[0])
	}
	if got := strings.Count(out, "-> "); got != 6 {
		t.Errorf("connection lines = %d, want 6 (both endpoints)", got)
	}
	if !strings.Contains(out, "resis...") {
		t.Error("expected truncated kind")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"DOT", FormatDOT, false},
		{"json", FormatJSON, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a long string", 10, "this is..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
