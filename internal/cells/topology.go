package cells

import (
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/locator"
)

// CellView is a copy of a cell's topology taken when its graph last
// changed. Connections is shared with every later snapshot in which the
// graph is unchanged and must not be modified.
type CellView struct {
	ID          uuid.UUID
	Kind        string
	Locator     locator.Locator
	Connections []Connection
}

// GraphView is a copy of one graph. Snapshots reuse the view of every
// graph a mutation did not touch, so the same *GraphView and its Cells
// slice are visible through many Topology values at once. Treat both as
// read-only; clone them before sorting or editing.
type GraphView struct {
	ID    uuid.UUID
	Cells []CellView
}

// Size returns the number of member cells.
func (v *GraphView) Size() int { return len(v.Cells) }

// Topology is an immutable snapshot of every graph in a world. Readers on
// other goroutines (solvers, renderers) consume Topology values and never
// the live graphs.
type Topology struct {
	Version uint64
	graphs  map[uuid.UUID]*GraphView
	owners  map[uuid.UUID]uuid.UUID
}

func emptyTopology() *Topology {
	return &Topology{
		graphs: make(map[uuid.UUID]*GraphView),
		owners: make(map[uuid.UUID]uuid.UUID),
	}
}

// Len returns the number of graphs.
func (t *Topology) Len() int { return len(t.graphs) }

// Graph returns the view of one graph.
func (t *Topology) Graph(id uuid.UUID) (*GraphView, bool) {
	v, ok := t.graphs[id]
	return v, ok
}

// GraphOf returns the identity of the graph holding a cell.
func (t *Topology) GraphOf(cell uuid.UUID) (uuid.UUID, bool) {
	id, ok := t.owners[cell]
	return id, ok
}

// Graphs returns all graph views ordered by identity.
func (t *Topology) Graphs() []*GraphView {
	out := slices.Collect(maps.Values(t.graphs))
	slices.SortFunc(out, func(a, b *GraphView) int { return compareIDs(a.ID, b.ID) })
	return out
}

// Sizes returns the member counts of all graphs in ascending order.
func (t *Topology) Sizes() []int {
	out := make([]int, 0, len(t.graphs))
	for _, v := range t.graphs {
		out = append(out, v.Size())
	}
	slices.Sort(out)
	return out
}

func viewOf(g *Graph) *GraphView {
	members := g.Members()
	v := &GraphView{ID: g.id, Cells: make([]CellView, len(members))}
	for i, c := range members {
		v.Cells[i] = CellView{
			ID:          c.id,
			Kind:        c.kind,
			Locator:     c.loc,
			Connections: c.Connections(),
		}
	}
	return v
}

// next derives a new snapshot that differs from t only in the given graphs.
func (t *Topology) next(m *Manager, changed, destroyed []uuid.UUID) *Topology {
	n := &Topology{
		Version: t.Version + 1,
		graphs:  maps.Clone(t.graphs),
		owners:  maps.Clone(t.owners),
	}
	drop := func(id uuid.UUID) {
		if old, ok := n.graphs[id]; ok {
			for _, c := range old.Cells {
				if n.owners[c.ID] == id {
					delete(n.owners, c.ID)
				}
			}
			delete(n.graphs, id)
		}
	}
	for _, id := range destroyed {
		drop(id)
	}
	for _, id := range changed {
		drop(id)
	}
	for _, id := range changed {
		g, ok := m.graphs[id]
		if !ok {
			continue
		}
		v := viewOf(g)
		n.graphs[id] = v
		for _, c := range v.Cells {
			n.owners[c.ID] = id
		}
	}
	return n
}

// Snapshot builds a complete snapshot of the registry.
func (m *Manager) Snapshot() *Topology {
	ids := slices.Collect(maps.Keys(m.graphs))
	return emptyTopology().next(m, ids, nil)
}
