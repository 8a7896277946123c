package cells

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/locator"
)

// Manager is the per-world registry of graphs, keyed by identity. Cells
// hold graph identities only; all graph references are resolved here.
type Manager struct {
	graphs    map[uuid.UUID]*Graph
	locators  map[locator.Locator]*Cell
	destroyed map[uuid.UUID]struct{}
	newID     func() uuid.UUID
	factory   CellFactory
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIDSource replaces the random graph identity source.
func WithIDSource(fn func() uuid.UUID) ManagerOption {
	return func(m *Manager) { m.newID = fn }
}

// WithCellFactory sets how cells are rebuilt from persisted records.
func WithCellFactory(f CellFactory) ManagerOption {
	return func(m *Manager) { m.factory = f }
}

// NewManager creates an empty registry.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		graphs:    make(map[uuid.UUID]*Graph),
		locators:  make(map[locator.Locator]*Cell),
		destroyed: make(map[uuid.UUID]struct{}),
		newID:     uuid.New,
		factory:   DefaultCellFactory,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new empty graph with a fresh identity.
func (m *Manager) Create() *Graph {
	id := m.newID()
	for m.graphs[id] != nil || id == uuid.Nil {
		id = m.newID()
	}
	g := newGraph(id)
	m.graphs[id] = g
	delete(m.destroyed, id)
	return g
}

// Get returns the graph with the given identity or ErrUnknownGraphID.
func (m *Manager) Get(id uuid.UUID) (*Graph, error) {
	g, ok := m.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGraphID, id)
	}
	return g, nil
}

// Contains reports whether the graph is tracked.
func (m *Manager) Contains(id uuid.UUID) bool {
	_, ok := m.graphs[id]
	return ok
}

// Destroy stops tracking g. Remaining members lose their graph and their
// connections, which can only point inside g.
func (m *Manager) Destroy(g *Graph) {
	if _, ok := m.graphs[g.id]; !ok {
		return
	}
	for _, c := range g.cells {
		delete(m.locators, c.loc)
		c.graph = uuid.Nil
		c.conns = nil
		c.state = StateUnrealized
	}
	delete(m.graphs, g.id)
	m.destroyed[g.id] = struct{}{}
}

// AllGraphs returns every tracked graph ordered by identity.
func (m *Manager) AllGraphs() []*Graph {
	out := slices.Collect(maps.Values(m.graphs))
	slices.SortFunc(out, func(a, b *Graph) int { return compareIDs(a.id, b.id) })
	return out
}

// Len returns the number of tracked graphs.
func (m *Manager) Len() int { return len(m.graphs) }

// CellAt returns the live inserted cell at loc across all graphs.
func (m *Manager) CellAt(loc locator.Locator) (*Cell, bool) {
	c, ok := m.locators[loc]
	return c, ok
}

// Stats summarises the registry.
type Stats struct {
	Graphs      int
	Cells       int
	LargestSize int
}

// Stats returns registry statistics.
func (m *Manager) Stats() Stats {
	s := Stats{Graphs: len(m.graphs)}
	for _, g := range m.graphs {
		s.Cells += g.Size()
		s.LargestSize = max(s.LargestSize, g.Size())
	}
	return s
}

// attach adds c to g and indexes its locator world-wide.
func (m *Manager) attach(g *Graph, c *Cell) error {
	if other, ok := m.locators[c.loc]; ok && other != c {
		return fmt.Errorf("%w: %s held by cell %s", ErrDuplicateLocator, c.loc, other.id)
	}
	if err := g.addCell(c); err != nil {
		return err
	}
	m.locators[c.loc] = c
	c.state = StateInserted
	return nil
}

// detach removes c from g and leaves it unrealized.
func (m *Manager) detach(g *Graph, c *Cell) error {
	if err := g.removeCell(c); err != nil {
		return err
	}
	delete(m.locators, c.loc)
	c.state = StateUnrealized
	return nil
}

// move transfers c between graphs without touching the locator index.
func (m *Manager) move(from, to *Graph, c *Cell) error {
	if err := from.removeCell(c); err != nil {
		return err
	}
	return to.addCell(c)
}

// takeDestroyed returns and clears the identities destroyed since the last call.
func (m *Manager) takeDestroyed() []uuid.UUID {
	out := slices.Collect(maps.Keys(m.destroyed))
	clear(m.destroyed)
	return out
}
