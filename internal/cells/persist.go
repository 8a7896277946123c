package cells

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/locator"
	"github.com/nvandessel/cellgraph/internal/store"
)

// CellFactory rebuilds a cell from its persisted record. loc is the decoded
// record locator. Factories must not set the cell's rule; rules belong to
// the container and are attached when the cell's chunk loads.
type CellFactory func(rec store.CellRecord, loc locator.Locator) (*Cell, error)

// DefaultCellFactory restores identity, kind, mode mask and direction
// restriction.
func DefaultCellFactory(rec store.CellRecord, loc locator.Locator) (*Cell, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("cell id %q: %w", rec.ID, err)
	}
	dirs, err := DecodeDirections(rec.Directions)
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", rec.ID, err)
	}
	return NewCell(loc,
		WithID(id),
		WithKind(rec.Kind),
		WithModes(locator.ModeMask(rec.Modes)),
		WithDirections(dirs...),
	), nil
}

// EncodeDirections is the persisted form of a direction restriction.
func EncodeDirections(dirs []locator.Direction) []uint8 {
	if len(dirs) == 0 {
		return nil
	}
	out := make([]uint8, len(dirs))
	for i, d := range dirs {
		out[i] = uint8(d)
	}
	return out
}

// DecodeDirections reverses EncodeDirections.
func DecodeDirections(raw []uint8) ([]locator.Direction, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]locator.Direction, len(raw))
	for i, b := range raw {
		d := locator.Direction(b)
		if !d.Valid() {
			return nil, fmt.Errorf("invalid direction %d", b)
		}
		out[i] = d
	}
	return out, nil
}

// Record returns the persisted form of g.
func (g *Graph) Record() (store.GraphRecord, error) {
	rec := store.GraphRecord{ID: g.id.String()}
	for _, c := range g.Members() {
		loc, err := c.loc.MarshalBinary()
		if err != nil {
			return store.GraphRecord{}, err
		}
		cr := store.CellRecord{
			ID:         c.id.String(),
			Kind:       c.kind,
			Modes:      uint8(c.modes),
			Locator:    loc,
			Directions: EncodeDirections(c.dirs),
		}
		for _, conn := range c.conns {
			remote, ok := g.cells[conn.Remote]
			if !ok {
				return store.GraphRecord{}, fmt.Errorf("%w: %s connects to %s outside graph %s", ErrInvalidReciprocalState, c, conn.Remote, g.id)
			}
			rl, err := remote.loc.MarshalBinary()
			if err != nil {
				return store.GraphRecord{}, err
			}
			cr.Connections = append(cr.Connections, store.ConnectionRecord{Locator: rl, Mode: uint8(conn.Mode)})
		}
		rec.Cells = append(rec.Cells, cr)
	}
	return rec, nil
}

// Save writes every dirty graph and deletes the records of graphs destroyed
// since the last save.
func (m *Manager) Save(ctx context.Context, st store.Store) error {
	destroyed := m.takeDestroyed()
	for i, id := range destroyed {
		if err := st.DeleteGraph(ctx, id.String()); err != nil {
			for _, rest := range destroyed[i:] {
				m.destroyed[rest] = struct{}{}
			}
			return fmt.Errorf("delete graph %s: %w", id, err)
		}
	}

	for _, g := range m.AllGraphs() {
		if !g.dirty {
			continue
		}
		rec, err := g.Record()
		if err != nil {
			return err
		}
		if err := st.SaveGraph(ctx, rec); err != nil {
			return fmt.Errorf("save graph %s: %w", g.id, err)
		}
		g.dirty = false
	}
	return nil
}

// Resolve returns the tracked graph with the given identity, loading it
// from st if it is not tracked yet. Loaded cells are inserted but bound to
// no container.
func (m *Manager) Resolve(ctx context.Context, st store.Store, id uuid.UUID) (*Graph, error) {
	if g, ok := m.graphs[id]; ok {
		return g, nil
	}
	if _, gone := m.destroyed[id]; gone || st == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGraphID, id)
	}

	rec, err := st.LoadGraph(ctx, id.String())
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGraphID, id)
	}
	if err != nil {
		return nil, err
	}
	return m.restore(id, rec)
}

// LoadAll loads every graph in st that is not tracked yet.
func (m *Manager) LoadAll(ctx context.Context, st store.Store) error {
	ids, err := st.ListGraphs(ctx)
	if err != nil {
		return fmt.Errorf("list graphs: %w", err)
	}
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("graph id %q: %w", raw, err)
		}
		if _, err := m.Resolve(ctx, st, id); err != nil {
			return err
		}
	}
	return nil
}

// restore validates rec completely before registering anything.
func (m *Manager) restore(id uuid.UUID, rec *store.GraphRecord) (*Graph, error) {
	g := newGraph(id)
	members := make([]*Cell, 0, len(rec.Cells))

	for _, cr := range rec.Cells {
		var loc locator.Locator
		if err := loc.UnmarshalBinary(cr.Locator); err != nil {
			return nil, fmt.Errorf("graph %s: cell %s: %w", id, cr.ID, err)
		}
		c, err := m.factory(cr, loc)
		if err != nil {
			return nil, fmt.Errorf("graph %s: %w", id, err)
		}
		if other, ok := m.locators[loc]; ok {
			return nil, fmt.Errorf("graph %s: %w: %s held by cell %s", id, ErrDuplicateLocator, loc, other.id)
		}
		if err := g.addCell(c); err != nil {
			return nil, fmt.Errorf("graph %s: %w", id, err)
		}
		members = append(members, c)
	}

	for i, cr := range rec.Cells {
		c := members[i]
		for _, conn := range cr.Connections {
			var rl locator.Locator
			if err := rl.UnmarshalBinary(conn.Locator); err != nil {
				return nil, fmt.Errorf("graph %s: cell %s: %w", id, c.id, err)
			}
			remote, err := g.CellByLocator(rl)
			if err != nil {
				return nil, fmt.Errorf("graph %s: cell %s: %w", id, c.id, err)
			}
			if err := c.addConnection(Connection{Remote: remote.id, Mode: locator.Mode(conn.Mode)}); err != nil {
				return nil, fmt.Errorf("graph %s: %w", id, err)
			}
		}
	}

	for _, c := range members {
		for _, conn := range c.conns {
			remote := g.cells[conn.Remote]
			back, ok := remote.ConnectionTo(c.id)
			if !ok || back.Mode != conn.Mode {
				return nil, fmt.Errorf("graph %s: %w: %s -> %s is not mirrored", id, ErrInvalidReciprocalState, c, remote)
			}
		}
	}

	if len(members) > 0 {
		reached, err := traverse(g, members[0], make(map[uuid.UUID]struct{}, len(members)))
		if err != nil {
			return nil, fmt.Errorf("graph %s: %w", id, err)
		}
		if len(reached) != len(members) {
			return nil, fmt.Errorf("graph %s: %w: %d of %d members reachable", id, ErrDisconnectedGraph, len(reached), len(members))
		}
	}

	for _, c := range members {
		m.locators[c.loc] = c
		c.state = StateInserted
	}
	g.dirty = false
	m.graphs[id] = g
	return g, nil
}
