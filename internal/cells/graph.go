package cells

import (
	"bytes"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/locator"
)

// Graph is a connected component of cells. Membership is written only by
// the Manager on behalf of Connections.
type Graph struct {
	id        uuid.UUID
	cells     map[uuid.UUID]*Cell
	byLocator map[locator.Locator]*Cell
	dirty     bool
}

func newGraph(id uuid.UUID) *Graph {
	return &Graph{
		id:        id,
		cells:     make(map[uuid.UUID]*Cell),
		byLocator: make(map[locator.Locator]*Cell),
	}
}

// ID returns the persistent graph identity.
func (g *Graph) ID() uuid.UUID { return g.id }

// Size returns the number of member cells.
func (g *Graph) Size() int { return len(g.cells) }

// IsEmpty reports whether the graph has no members.
func (g *Graph) IsEmpty() bool { return len(g.cells) == 0 }

// Dirty reports whether membership changed since the last save.
func (g *Graph) Dirty() bool { return g.dirty }

// ContainsCell reports membership by cell identity.
func (g *Graph) ContainsCell(id uuid.UUID) bool {
	_, ok := g.cells[id]
	return ok
}

// Cell returns the member with the given identity.
func (g *Graph) Cell(id uuid.UUID) (*Cell, bool) {
	c, ok := g.cells[id]
	return c, ok
}

// CellByLocator returns the member at loc or ErrLocatorNotFound.
func (g *Graph) CellByLocator(loc locator.Locator) (*Cell, error) {
	c, ok := g.byLocator[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s in graph %s", ErrLocatorNotFound, loc, g.id)
	}
	return c, nil
}

// Cells iterates members in unspecified order.
func (g *Graph) Cells() iter.Seq[*Cell] {
	return maps.Values(g.cells)
}

// Members returns members ordered by identity.
func (g *Graph) Members() []*Cell {
	out := slices.Collect(maps.Values(g.cells))
	slices.SortFunc(out, func(a, b *Cell) int { return compareIDs(a.id, b.id) })
	return out
}

func (g *Graph) addCell(c *Cell) error {
	if _, ok := g.byLocator[c.loc]; ok {
		return fmt.Errorf("%w: %s in graph %s", ErrDuplicateLocator, c.loc, g.id)
	}
	if _, ok := g.cells[c.id]; ok {
		return fmt.Errorf("cell %s already in graph %s", c.id, g.id)
	}
	g.cells[c.id] = c
	g.byLocator[c.loc] = c
	c.graph = g.id
	g.dirty = true
	return nil
}

func (g *Graph) removeCell(c *Cell) error {
	if _, ok := g.cells[c.id]; !ok {
		return fmt.Errorf("cell %s not in graph %s", c.id, g.id)
	}
	delete(g.cells, c.id)
	delete(g.byLocator, c.loc)
	c.graph = uuid.Nil
	g.dirty = true
	return nil
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
