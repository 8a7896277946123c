package cells

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/locator"
	"github.com/nvandessel/cellgraph/internal/logging"
)

// Connections owns every structural change to the cell graphs of one world.
//
// Insertion merges the graphs of all accepted neighbors. Removal drops the
// cell's edges and, when the cell had two or more neighbors, searches the
// remaining graph from each former neighbor to detect a split. Union-only
// structures cannot undo a union, so the search is a bounded traversal of
// the affected component only.
//
// All mutations are synchronous and single-writer; see guard.
type Connections struct {
	manager    *Manager
	containers Resolver
	logger     *slog.Logger
	events     *logging.EventLog
	guard      guard
	published  atomic.Pointer[Topology]
}

// ConnectionsOption configures Connections.
type ConnectionsOption func(*Connections)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) ConnectionsOption {
	return func(c *Connections) { c.logger = l }
}

// WithEventLog sets the JSONL topology event log.
func WithEventLog(e *logging.EventLog) ConnectionsOption {
	return func(c *Connections) { c.events = e }
}

// NewConnections creates a connection manager over m, resolving container
// handles through r.
func NewConnections(m *Manager, r Resolver, opts ...ConnectionsOption) *Connections {
	c := &Connections{manager: m, containers: r}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	c.published.Store(m.Snapshot())
	return c
}

// Manager returns the graph registry.
func (c *Connections) Manager() *Manager { return c.manager }

// Snapshot returns the topology published by the last completed mutation.
// It is safe to call from any goroutine.
func (c *Connections) Snapshot() *Topology { return c.published.Load() }

// Republish rebuilds the published snapshot from the registry, e.g. after
// graphs were loaded from a store.
func (c *Connections) Republish() error {
	if err := c.guard.enter("republish"); err != nil {
		return err
	}
	defer c.guard.exit()
	prev := c.published.Load()
	next := c.manager.Snapshot()
	next.Version = prev.Version + 1
	c.published.Store(next)
	return nil
}

// Insert connects an unrealized cell to its accepted neighbors, merging
// their graphs, or places it in a new singleton graph. Candidates that are
// not inserted yet are skipped: insertion order of cells created together
// is up to the caller.
func (c *Connections) Insert(cell *Cell) error {
	if err := c.guard.enter("insert"); err != nil {
		return err
	}
	defer c.guard.exit()

	mu := newMutation()
	if err := c.insert(cell, mu); err != nil {
		return fmt.Errorf("insert %s: %w", cell, err)
	}
	c.finish(mu)
	return nil
}

// Remove disconnects an inserted cell and splits its graph if needed. The
// cell becomes unrealized and may be inserted again.
func (c *Connections) Remove(cell *Cell) error {
	if err := c.guard.enter("remove"); err != nil {
		return err
	}
	defer c.guard.exit()

	mu := newMutation()
	err := c.remove(cell, mu)
	if !mu.empty() {
		c.finish(mu)
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", cell, err)
	}
	return nil
}

// Reconnect removes and re-inserts an inserted cell, re-evaluating its
// connections. If action is not nil it runs while the cell is detached,
// which is the only time its rule may change.
func (c *Connections) Reconnect(cell *Cell, action func()) error {
	if err := c.guard.enter("reconnect"); err != nil {
		return err
	}
	defer c.guard.exit()

	mu := newMutation()
	if err := c.remove(cell, mu); err != nil {
		if !mu.empty() {
			c.finish(mu)
		}
		return fmt.Errorf("reconnect %s: %w", cell, err)
	}
	if action != nil {
		action()
	}
	err := c.insert(cell, mu)
	c.finish(mu)
	if err != nil {
		return fmt.Errorf("reconnect %s: %w", cell, err)
	}
	return nil
}

// Destroy removes the cell if it is inserted and moves it to the terminal
// destroyed state.
func (c *Connections) Destroy(cell *Cell) error {
	if err := c.guard.enter("destroy"); err != nil {
		return err
	}
	defer c.guard.exit()

	if cell.state == StateDestroyed {
		return fmt.Errorf("destroy %s: %w", cell, ErrCellDestroyed)
	}

	mu := newMutation()
	if cell.state == StateInserted {
		if err := c.remove(cell, mu); err != nil {
			if !mu.empty() {
				c.finish(mu)
			}
			return fmt.Errorf("destroy %s: %w", cell, err)
		}
	}
	if cell.state != StateUnrealized || len(cell.conns) != 0 {
		return fmt.Errorf("destroy %s: %w: %s with %d connections", cell, ErrInvalidReciprocalState, cell.state, len(cell.conns))
	}
	cell.state = StateDestroyed
	cell.container = 0
	c.finish(mu)
	return nil
}

func (c *Connections) insert(cell *Cell, mu *mutation) error {
	switch cell.state {
	case StateDestroyed:
		return ErrCellDestroyed
	case StateInserted:
		return ErrAlreadyInserted
	}
	if len(cell.conns) != 0 {
		return fmt.Errorf("%w: unrealized cell has %d connections", ErrInvalidReciprocalState, len(cell.conns))
	}
	if other, ok := c.manager.CellAt(cell.loc); ok && other != cell {
		return fmt.Errorf("%w: %s held by cell %s", ErrDuplicateLocator, cell.loc, other.id)
	}

	container, ok := c.resolve(cell)
	if !ok {
		return ErrNoContainer
	}
	candidates, err := container.NeighborScan(cell)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	neighbors, graphs, err := c.partition(cell, candidates)
	if err != nil {
		return err
	}

	var target *Graph
	switch len(graphs) {
	case 0:
		target = c.manager.Create()
		c.logger.Debug("graph created", "graph", target.id)
	case 1:
		target = graphs[0]
	default:
		target, err = c.merge(graphs, mu)
		if err != nil {
			return err
		}
	}

	if err := c.manager.attach(target, cell); err != nil {
		return err
	}
	for _, n := range neighbors {
		if err := cell.addConnection(Connection{Remote: n.Cell.id, Mode: n.Mode}); err != nil {
			return err
		}
		if err := n.Cell.addConnection(Connection{Remote: cell.id, Mode: n.Mode}); err != nil {
			return err
		}
		mu.connect(cell, n.Cell)
		mu.touch(n.Cell)
	}
	mu.touch(cell)
	mu.change(target.id)

	c.logger.Debug("cell inserted",
		"cell", cell.id, "locator", cell.loc, "graph", target.id,
		"neighbors", len(neighbors), "size", target.Size())
	c.events.Log(logging.TopologyEvent{
		Kind:      logging.EventInsert,
		Graph:     target.id,
		Cell:      cell.id,
		Locator:   cell.loc.String(),
		Neighbors: len(neighbors),
		Size:      target.Size(),
	})
	return nil
}

// partition validates scan results and groups the inserted neighbors by graph.
// Nothing is mutated.
func (c *Connections) partition(cell *Cell, candidates []Candidate) ([]Candidate, []*Graph, error) {
	var neighbors []Candidate
	var graphs []*Graph
	seen := make(map[uuid.UUID]struct{}, len(candidates))

	for _, cand := range candidates {
		if cand.Cell == nil {
			continue
		}
		if cand.Cell == cell {
			return nil, nil, fmt.Errorf("%w: %s reached itself", ErrDuplicateCandidate, cell)
		}
		if _, dup := seen[cand.Cell.id]; dup {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateCandidate, cand.Cell)
		}
		seen[cand.Cell.id] = struct{}{}

		if cand.Mode == locator.Unknown {
			c.logger.Log(context.Background(), logging.LevelTrace, "candidate rejected", "cell", cell.id, "remote", cand.Cell.id)
			continue
		}
		gid, ok := cand.Cell.GraphID()
		if !ok {
			c.logger.Warn("skipping candidate that is not inserted",
				"cell", cell.id, "remote", cand.Cell.id, "locator", cand.Cell.loc)
			continue
		}
		if cand.Cell.ConnectedTo(cell.id) {
			return nil, nil, fmt.Errorf("%w: %s already records %s", ErrInvalidReciprocalState, cand.Cell, cell.id)
		}
		g, err := c.manager.Get(gid)
		if err != nil {
			return nil, nil, err
		}

		neighbors = append(neighbors, cand)
		if !slices.Contains(graphs, g) {
			graphs = append(graphs, g)
		}
	}
	return neighbors, graphs, nil
}

// merge moves every member of graphs into the largest one, ties broken by
// the smaller identity, and destroys the others.
func (c *Connections) merge(graphs []*Graph, mu *mutation) (*Graph, error) {
	survivor := graphs[0]
	for _, g := range graphs[1:] {
		if g.Size() > survivor.Size() || (g.Size() == survivor.Size() && compareIDs(g.id, survivor.id) < 0) {
			survivor = g
		}
	}

	absorbed := make([]uuid.UUID, 0, len(graphs)-1)
	for _, g := range graphs {
		if g == survivor {
			continue
		}
		absorbed = append(absorbed, g.id)
		for _, member := range g.Members() {
			if err := c.manager.move(g, survivor, member); err != nil {
				return nil, err
			}
			mu.touch(member)
		}
		c.manager.Destroy(g)
		mu.destroy(g.id)
		c.logger.Info("graph destroyed", "graph", g.id, "reason", "merged", "into", survivor.id)
	}

	c.logger.Debug("graphs merged", "survivor", survivor.id, "absorbed", len(graphs)-1, "size", survivor.Size())
	c.events.Log(logging.TopologyEvent{
		Kind:     logging.EventMerge,
		Graph:    survivor.id,
		Absorbed: absorbed,
		Size:     survivor.Size(),
	})
	return survivor, nil
}

func (c *Connections) remove(cell *Cell, mu *mutation) error {
	switch cell.state {
	case StateDestroyed:
		return ErrCellDestroyed
	case StateUnrealized:
		return ErrNotInserted
	}

	g, err := c.manager.Get(cell.graph)
	if err != nil {
		return err
	}
	if !g.ContainsCell(cell.id) {
		return fmt.Errorf("cell %s is not a member of graph %s", cell.id, g.id)
	}

	neighbors := make([]*Cell, 0, len(cell.conns))
	for _, conn := range cell.conns {
		n, ok := g.Cell(conn.Remote)
		if !ok {
			return fmt.Errorf("%w: %s connects to %s outside graph %s", ErrInvalidReciprocalState, cell, conn.Remote, g.id)
		}
		back, ok := n.ConnectionTo(cell.id)
		if !ok || back.Mode != conn.Mode {
			return fmt.Errorf("%w: %s -> %s is not mirrored", ErrInvalidReciprocalState, cell, n)
		}
		neighbors = append(neighbors, n)
	}
	if len(neighbors) == 0 && g.Size() > 1 {
		return fmt.Errorf("%w: isolated cell shares graph %s with %d others", ErrDisconnectedGraph, g.id, g.Size()-1)
	}

	for _, n := range neighbors {
		if err := cell.removeConnection(n.id); err != nil {
			return err
		}
		if err := n.removeConnection(cell.id); err != nil {
			return err
		}
		mu.disconnect(cell, n)
		mu.touch(n)
	}

	if err := c.manager.detach(g, cell); err != nil {
		return err
	}
	mu.touch(cell)

	c.logger.Debug("cell removed", "cell", cell.id, "locator", cell.loc, "graph", g.id, "neighbors", len(neighbors))
	c.events.Log(logging.TopologyEvent{
		Kind:      logging.EventRemove,
		Graph:     g.id,
		Cell:      cell.id,
		Locator:   cell.loc.String(),
		Neighbors: len(neighbors),
		Size:      g.Size(),
	})

	if g.IsEmpty() {
		c.manager.Destroy(g)
		mu.destroy(g.id)
		c.logger.Info("graph destroyed", "graph", g.id, "reason", "empty")
		return nil
	}

	mu.change(g.id)
	if len(neighbors) == 1 {
		return nil
	}
	return c.split(g, neighbors, mu)
}

// split searches g from each former neighbor of a removed cell. The first
// search that reaches every member proves g is still connected. Otherwise
// each search yields one component; the largest keeps g's identity (ties go
// to the component holding the smallest cell identity) and every other
// component moves to a new graph.
func (c *Connections) split(g *Graph, roots []*Cell, mu *mutation) error {
	remaining := g.Size()
	visited := make(map[uuid.UUID]struct{}, remaining)
	var components [][]*Cell

	for _, root := range roots {
		if _, ok := visited[root.id]; ok {
			continue
		}
		component, err := traverse(g, root, visited)
		if err != nil {
			return err
		}
		components = append(components, component)
		if len(visited) == remaining {
			break
		}
	}

	if len(visited) != remaining {
		return fmt.Errorf("%w: %d of %d members of %s unreachable", ErrDisconnectedGraph, remaining-len(visited), remaining, g.id)
	}
	if len(components) == 1 {
		return nil
	}

	keep := 0
	for i := 1; i < len(components); i++ {
		a, b := components[i], components[keep]
		if len(a) > len(b) || (len(a) == len(b) && compareIDs(minID(a), minID(b)) < 0) {
			keep = i
		}
	}

	created := make([]uuid.UUID, 0, len(components)-1)
	for i, component := range components {
		if i == keep {
			continue
		}
		ng := c.manager.Create()
		for _, member := range component {
			if err := c.manager.move(g, ng, member); err != nil {
				return err
			}
			mu.touch(member)
		}
		mu.change(ng.id)
		created = append(created, ng.id)
	}

	c.logger.Debug("graph split", "graph", g.id, "components", len(components), "kept", len(components[keep]))
	c.events.Log(logging.TopologyEvent{
		Kind:    logging.EventSplit,
		Graph:   g.id,
		Created: created,
		Size:    g.Size(),
	})
	return nil
}

// traverse runs a breadth-first search from root restricted to members of g.
func traverse(g *Graph, root *Cell, visited map[uuid.UUID]struct{}) ([]*Cell, error) {
	visited[root.id] = struct{}{}
	queue := []*Cell{root}
	var component []*Cell

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		component = append(component, cur)

		for _, conn := range cur.conns {
			if _, ok := visited[conn.Remote]; ok {
				continue
			}
			next, ok := g.Cell(conn.Remote)
			if !ok {
				return nil, fmt.Errorf("%w: %s connects to %s outside graph %s", ErrInvalidReciprocalState, cur, conn.Remote, g.id)
			}
			visited[next.id] = struct{}{}
			queue = append(queue, next)
		}
	}
	return component, nil
}

func minID(cells []*Cell) uuid.UUID {
	out := cells[0].id
	for _, c := range cells[1:] {
		if compareIDs(c.id, out) < 0 {
			out = c.id
		}
	}
	return out
}

func (c *Connections) resolve(cell *Cell) (Container, bool) {
	if cell.container == 0 || c.containers == nil {
		return nil, false
	}
	return c.containers.Container(cell.container)
}

// finish publishes the new topology and then delivers container callbacks.
func (c *Connections) finish(mu *mutation) {
	prev := c.published.Load()
	c.published.Store(prev.next(c.manager, slices.Collect(maps.Keys(mu.changed)), mu.destroyed))

	for _, p := range mu.disconnected {
		c.notify(p.local, func(ct Container) { ct.OnCellDisconnected(p.local, p.remote) })
		c.notify(p.remote, func(ct Container) { ct.OnCellDisconnected(p.remote, p.local) })
	}
	for _, p := range mu.connected {
		c.notify(p.local, func(ct Container) { ct.OnCellConnected(p.local, p.remote) })
		c.notify(p.remote, func(ct Container) { ct.OnCellConnected(p.remote, p.local) })
	}

	if c.containers == nil {
		return
	}
	for _, h := range slices.Sorted(maps.Keys(mu.touched)) {
		if ct, ok := c.containers.Container(h); ok {
			ct.OnTopologyChanged()
		}
	}
}

func (c *Connections) notify(cell *Cell, fn func(Container)) {
	if ct, ok := c.resolve(cell); ok {
		fn(ct)
	}
}

type cellPair struct {
	local, remote *Cell
}

// mutation collects the side effects of one operation.
type mutation struct {
	changed      map[uuid.UUID]struct{}
	destroyed    []uuid.UUID
	touched      map[Handle]struct{}
	connected    []cellPair
	disconnected []cellPair
}

func newMutation() *mutation {
	return &mutation{
		changed: make(map[uuid.UUID]struct{}),
		touched: make(map[Handle]struct{}),
	}
}

func (mu *mutation) change(id uuid.UUID) { mu.changed[id] = struct{}{} }

// empty reports whether nothing was recorded.
func (mu *mutation) empty() bool {
	return len(mu.changed) == 0 && len(mu.destroyed) == 0 && len(mu.touched) == 0 &&
		len(mu.connected) == 0 && len(mu.disconnected) == 0
}

func (mu *mutation) destroy(id uuid.UUID) {
	delete(mu.changed, id)
	mu.destroyed = append(mu.destroyed, id)
}

func (mu *mutation) touch(c *Cell) {
	if c.container != 0 {
		mu.touched[c.container] = struct{}{}
	}
}

func (mu *mutation) connect(local, remote *Cell) {
	mu.connected = append(mu.connected, cellPair{local, remote})
}

func (mu *mutation) disconnect(local, remote *Cell) {
	mu.disconnected = append(mu.disconnected, cellPair{local, remote})
}
