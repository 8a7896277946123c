// Package cells maintains the graph of simulation cells: cells and their
// connections, connected components (graphs), the per-world graph registry
// and the connection manager that inserts and removes cells while keeping
// graph membership equal to connectivity.
package cells

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/locator"
)

// State is the lifecycle state of a cell.
type State uint8

const (
	// StateUnrealized cells have no graph and no connections.
	StateUnrealized State = iota
	// StateInserted cells belong to exactly one graph.
	StateInserted
	// StateDestroyed is terminal.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUnrealized:
		return "unrealized"
	case StateInserted:
		return "inserted"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Handle refers to a container through the world's container registry.
// The zero handle means the cell is not bound to a resident container.
type Handle uint64

// Rule decides whether a cell at self accepts a connection to remote.
type Rule func(self, remote locator.Locator) bool

// Connection is one endpoint's record of an undirected edge.
type Connection struct {
	Remote uuid.UUID
	Mode   locator.Mode
}

// Cell is a simulation node. Its connections and graph membership are
// written only by Connections.
type Cell struct {
	id        uuid.UUID
	kind      string
	loc       locator.Locator
	modes     locator.ModeMask
	rule      Rule
	dirs      []locator.Direction
	container Handle
	conns     []Connection
	graph     uuid.UUID
	state     State
}

// Option configures a new cell.
type Option func(*Cell)

// WithID sets a persistent identity instead of a random one.
func WithID(id uuid.UUID) Option {
	return func(c *Cell) { c.id = id }
}

// WithKind sets the cell type name.
func WithKind(kind string) Option {
	return func(c *Cell) { c.kind = kind }
}

// WithModes restricts which adjacency modes the cell permits.
func WithModes(m locator.ModeMask) Option {
	return func(c *Cell) { c.modes = m }
}

// WithRule installs a relation rule.
func WithRule(r Rule) Option {
	return func(c *Cell) { c.rule, c.dirs = r, nil }
}

// WithDirections installs DirectionRule(dirs...). Unlike an arbitrary rule,
// a direction restriction is persisted with the cell.
func WithDirections(dirs ...locator.Direction) Option {
	return func(c *Cell) { c.setDirections(dirs) }
}

// NewCell creates an unrealized cell at loc.
func NewCell(loc locator.Locator, opts ...Option) *Cell {
	c := &Cell{
		id:    uuid.New(),
		kind:  "cell",
		loc:   loc,
		modes: locator.AllModes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the cell's stable identity.
func (c *Cell) ID() uuid.UUID { return c.id }

// Kind returns the application-defined cell kind, e.g. "wire".
func (c *Cell) Kind() string { return c.kind }

// Locator returns where the cell sits. It never changes.
func (c *Cell) Locator() locator.Locator { return c.loc }

// Modes returns the adjacency modes the cell accepts.
func (c *Cell) Modes() locator.ModeMask { return c.modes }

// State returns the lifecycle state.
func (c *Cell) State() State { return c.state }

// ConnectionCount returns the number of recorded connections.
func (c *Cell) ConnectionCount() int { return len(c.conns) }

// Connections returns a copy of the recorded connections.
func (c *Cell) Connections() []Connection { return slices.Clone(c.conns) }

func (c *Cell) String() string { return fmt.Sprintf("%s@%s", c.kind, c.loc) }

// Directions returns the direction restriction, or nil if the cell has none
// or uses a custom rule.
func (c *Cell) Directions() []locator.Direction { return slices.Clone(c.dirs) }

// GraphID returns the identity of the owning graph.
func (c *Cell) GraphID() (uuid.UUID, bool) {
	return c.graph, c.state == StateInserted
}

// Container returns the handle of the owning container.
func (c *Cell) Container() (Handle, bool) {
	return c.container, c.container != 0
}

// Bind attaches the cell to a resident container.
func (c *Cell) Bind(h Handle) {
	c.container = h
}

// Unbind detaches the cell from its container, e.g. when its chunk unloads.
// Graph membership is unaffected.
func (c *Cell) Unbind() {
	c.container = 0
}

// SetRule replaces the relation rule. Only unrealized cells may change
// rules; use Connections.Reconnect to change the rule of an inserted cell.
func (c *Cell) SetRule(r Rule) error {
	if c.state != StateUnrealized {
		return fmt.Errorf("set rule on %s cell %s", c.state, c)
	}
	c.rule, c.dirs = r, nil
	return nil
}

// SetDirections is SetRule with a persisted direction restriction. An
// empty dirs removes any rule.
func (c *Cell) SetDirections(dirs ...locator.Direction) error {
	if c.state != StateUnrealized {
		return fmt.Errorf("set directions on %s cell %s", c.state, c)
	}
	c.setDirections(dirs)
	return nil
}

func (c *Cell) setDirections(dirs []locator.Direction) {
	if len(dirs) == 0 {
		c.rule, c.dirs = nil, nil
		return
	}
	c.dirs = slices.Clone(dirs)
	c.rule = DirectionRule(c.dirs...)
}

// ConnectedTo reports whether c records a connection to id.
func (c *Cell) ConnectedTo(id uuid.UUID) bool {
	return c.connectionIndex(id) >= 0
}

// ConnectionTo returns the recorded connection to id.
func (c *Cell) ConnectionTo(id uuid.UUID) (Connection, bool) {
	i := c.connectionIndex(id)
	if i < 0 {
		return Connection{}, false
	}
	return c.conns[i], true
}

func (c *Cell) connectionIndex(id uuid.UUID) int {
	return slices.IndexFunc(c.conns, func(conn Connection) bool { return conn.Remote == id })
}

// accepts applies the mode mask and relation rule. A remote the cell is
// already connected to is always accepted so that scans stay consistent
// with recorded connections.
func (c *Cell) accepts(remote *Cell, mode locator.Mode) bool {
	if c.ConnectedTo(remote.id) {
		return true
	}
	if !c.modes.Has(mode) {
		return false
	}
	return c.rule == nil || c.rule(c.loc, remote.loc)
}

func (c *Cell) addConnection(conn Connection) error {
	if c.ConnectedTo(conn.Remote) {
		return fmt.Errorf("%w: %s already connected to %s", ErrInvalidReciprocalState, c.id, conn.Remote)
	}
	c.conns = append(c.conns, conn)
	return nil
}

func (c *Cell) removeConnection(id uuid.UUID) error {
	i := c.connectionIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s has no connection to %s", ErrInvalidReciprocalState, c.id, id)
	}
	c.conns = slices.Delete(c.conns, i, i+1)
	return nil
}

// Accepted reports whether a and b both accept a connection in mode.
func Accepted(a, b *Cell, mode locator.Mode) bool {
	return a.accepts(b, mode) && b.accepts(a, mode)
}

// DirectionRule accepts only remotes lying in one of dirs, in world space,
// as classified by locator.Classify.
func DirectionRule(dirs ...locator.Direction) Rule {
	return func(self, remote locator.Locator) bool {
		mode, dir := locator.Classify(self, remote)
		return mode != locator.Unknown && slices.Contains(dirs, dir)
	}
}
