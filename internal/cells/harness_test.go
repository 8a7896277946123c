package cells

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/locator"
)

// testGrid is a minimal world: one container per block position, each
// holding cells on any of its faces.
type testGrid struct {
	t          *testing.T
	containers map[locator.BlockPos]*testContainer
	handles    map[Handle]*testContainer
	solids     map[locator.BlockPos]bool
	scanner    Scanner
	manager    *Manager
	conns      *Connections
	nextID     uint64
}

type testContainer struct {
	grid         *testGrid
	handle       Handle
	pos          locator.BlockPos
	cells        []*Cell
	connected    int
	disconnected int
	changed      int
	reenter      func()
}

func newTestGrid(t *testing.T, opts ...ConnectionsOption) *testGrid {
	t.Helper()
	g := &testGrid{
		t:          t,
		containers: make(map[locator.BlockPos]*testContainer),
		handles:    make(map[Handle]*testContainer),
		solids:     make(map[locator.BlockPos]bool),
	}
	g.scanner = Scanner{View: g}
	g.manager = NewManager(WithIDSource(sequentialIDs(0x1000)))
	g.conns = NewConnections(g.manager, ResolverFunc(g.container), opts...)
	return g
}

// sequentialIDs returns an identity source yielding ordered identities.
func sequentialIDs(start uint64) func() uuid.UUID {
	n := start
	return func() uuid.UUID {
		n++
		return idFor(n)
	}
}

func idFor(n uint64) uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}

func (g *testGrid) ContainerAt(pos locator.BlockPos) (Container, bool) {
	c, ok := g.containers[pos]
	if !ok {
		return nil, false
	}
	return c, true
}

func (g *testGrid) Occupied(pos locator.BlockPos) bool {
	_, ok := g.containers[pos]
	return ok || g.solids[pos]
}

func (g *testGrid) container(h Handle) (Container, bool) {
	c, ok := g.handles[h]
	if !ok {
		return nil, false
	}
	return c, true
}

func (g *testGrid) at(pos locator.BlockPos) *testContainer {
	if c, ok := g.containers[pos]; ok {
		return c
	}
	g.nextID++
	c := &testContainer{grid: g, handle: Handle(g.nextID), pos: pos}
	g.containers[pos] = c
	g.handles[c.handle] = c
	return c
}

// newCell builds an unrealized cell with a predictable identity.
func (g *testGrid) newCell(n uint64, pos locator.BlockPos, face locator.Direction, opts ...Option) *Cell {
	return NewCell(locator.At(pos, face), append([]Option{WithID(idFor(n)), WithKind("wire")}, opts...)...)
}

// place adds a cell to the container at pos and inserts it.
func (g *testGrid) place(n uint64, pos locator.BlockPos, face locator.Direction, opts ...Option) *Cell {
	g.t.Helper()
	c := g.newCell(n, pos, face, opts...)
	if err := g.tryPlace(c); err != nil {
		g.t.Fatalf("place %s: %v", c, err)
	}
	return c
}

func (g *testGrid) tryPlace(c *Cell) error {
	pos, _ := c.Locator().Block()
	ct := g.at(pos)
	ct.cells = append(ct.cells, c)
	c.Bind(ct.handle)
	if err := g.conns.Insert(c); err != nil {
		ct.drop(c)
		return err
	}
	return nil
}

// remove removes a cell from the graph and from its container.
func (g *testGrid) remove(c *Cell) {
	g.t.Helper()
	if err := g.conns.Remove(c); err != nil {
		g.t.Fatalf("remove %s: %v", c, err)
	}
	pos, _ := c.Locator().Block()
	g.containers[pos].drop(c)
}

func (c *testContainer) drop(cell *Cell) {
	for i, x := range c.cells {
		if x == cell {
			c.cells = append(c.cells[:i], c.cells[i+1:]...)
			break
		}
	}
	cell.Unbind()
	if len(c.cells) == 0 {
		delete(c.grid.containers, c.pos)
		delete(c.grid.handles, c.handle)
	}
}

func (c *testContainer) Handle() Handle { return c.handle }
func (c *testContainer) Cells() []*Cell { return c.cells }
func (c *testContainer) OnTopologyChanged() { c.changed++ }

func (c *testContainer) NeighborScan(cell *Cell) ([]Candidate, error) {
	face, err := cell.Locator().RequireFace()
	if err != nil {
		return nil, err
	}
	return c.grid.scanner.Scan(c, cell, face.Perpendicular())
}

func (c *testContainer) OnCellConnected(local, remote *Cell) {
	c.connected++
	if c.reenter != nil {
		c.reenter()
	}
}

func (c *testContainer) OnCellDisconnected(local, remote *Cell) { c.disconnected++ }

// checkInvariants verifies symmetric edges, membership and the locator index.
func checkInvariants(t *testing.T, m *Manager) {
	t.Helper()
	seen := make(map[uuid.UUID]uuid.UUID)
	for _, g := range m.AllGraphs() {
		if g.IsEmpty() {
			t.Errorf("graph %s is empty but tracked", g.ID())
		}
		for c := range g.Cells() {
			if prev, dup := seen[c.ID()]; dup {
				t.Errorf("cell %s in graphs %s and %s", c, prev, g.ID())
			}
			seen[c.ID()] = g.ID()
			if gid, ok := c.GraphID(); !ok || gid != g.ID() {
				t.Errorf("cell %s records graph %s, member of %s", c, gid, g.ID())
			}
			if c.State() != StateInserted {
				t.Errorf("cell %s state = %s, want inserted", c, c.State())
			}
			if at, ok := m.CellAt(c.Locator()); !ok || at != c {
				t.Errorf("locator index misses %s", c)
			}
			for _, conn := range c.Connections() {
				remote, ok := g.Cell(conn.Remote)
				if !ok {
					t.Errorf("cell %s connects outside its graph to %s", c, conn.Remote)
					continue
				}
				back, ok := remote.ConnectionTo(c.ID())
				if !ok || back.Mode != conn.Mode {
					t.Errorf("edge %s -> %s is not mirrored", c, remote)
				}
			}
		}
		if g.Size() > 1 {
			visited := make(map[uuid.UUID]struct{})
			comp, err := traverse(g, g.Members()[0], visited)
			if err != nil || len(comp) != g.Size() {
				t.Errorf("graph %s is not connected", g.ID())
			}
		}
	}
}

func graphOf(t *testing.T, c *Cell) uuid.UUID {
	t.Helper()
	id, ok := c.GraphID()
	if !ok {
		t.Fatalf("cell %s has no graph", c)
	}
	return id
}
