package world

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/nvandessel/cellgraph/internal/locator"
	"github.com/nvandessel/cellgraph/internal/store"
)

type chunk struct {
	key        store.ChunkKey
	containers map[locator.BlockPos]*Container
	solids     map[locator.BlockPos]struct{}
	dirty      bool
}

func newChunk(key store.ChunkKey) *chunk {
	return &chunk{
		key:        key,
		containers: make(map[locator.BlockPos]*Container),
		solids:     make(map[locator.BlockPos]struct{}),
	}
}

// Resident returns the keys of all loaded chunks ordered by (x, z).
func (w *World) Resident() []store.ChunkKey {
	keys := slices.Collect(maps.Keys(w.chunks))
	slices.SortFunc(keys, func(a, b store.ChunkKey) int {
		return cmp.Or(cmp.Compare(a.X, b.X), cmp.Compare(a.Z, b.Z))
	})
	return keys
}

// IsResident reports whether the chunk is loaded.
func (w *World) IsResident(key store.ChunkKey) bool {
	_, ok := w.chunks[key]
	return ok
}

// prepare makes the chunk holding pos resident and, with force-load, every
// stored chunk a scan from pos can reach.
func (w *World) prepare(ctx context.Context, pos locator.BlockPos) error {
	if err := w.LoadChunk(ctx, w.chunkOf(pos)); err != nil {
		return err
	}
	if !w.forceLoad {
		return nil
	}
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			key := w.chunkOf(pos.Add(locator.Pos(dx, 0, dz)))
			if w.IsResident(key) {
				continue
			}
			if _, err := w.loadStored(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadChunk makes a chunk resident, restoring its stored content if any.
// Loading a resident chunk does nothing.
func (w *World) LoadChunk(ctx context.Context, key store.ChunkKey) error {
	if w.IsResident(key) {
		return nil
	}
	found, err := w.loadStored(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		w.chunks[key] = newChunk(key)
	}
	return nil
}

// loadStored loads a chunk from the store. It reports false, leaving the
// chunk non-resident, when the store has no record of it.
func (w *World) loadStored(ctx context.Context, key store.ChunkKey) (bool, error) {
	rec, err := w.store.LoadChunk(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load chunk %s: %w", key, err)
	}

	ch := newChunk(key)
	w.chunks[key] = ch
	for _, s := range rec.Solids {
		ch.solids[locator.Pos(s.X, s.Y, s.Z)] = struct{}{}
	}

	var fresh []*cells.Cell
	for _, cr := range rec.Containers {
		kind, err := ParseKind(cr.Kind)
		if err != nil {
			return false, w.abortLoad(ch, fmt.Errorf("load chunk %s: %w", key, err))
		}
		c := w.register(ch, kind, locator.Pos(cr.X, cr.Y, cr.Z))
		for _, ref := range cr.Cells {
			cell, inserted, err := w.restoreCell(ctx, ref)
			if err != nil {
				return false, w.abortLoad(ch, fmt.Errorf("load chunk %s: %w", key, err))
			}
			face, _ := cell.Locator().Face()
			c.parts[face] = cell
			cell.Bind(c.handle)
			if !inserted {
				fresh = append(fresh, cell)
			}
		}
	}

	// Graph records may have been loaded on demand.
	if err := w.conns.Republish(); err != nil {
		return false, w.abortLoad(ch, err)
	}
	for _, cell := range fresh {
		if err := w.conns.Insert(cell); err != nil {
			return false, w.abortLoad(ch, fmt.Errorf("load chunk %s: %w", key, err))
		}
	}

	ch.dirty = len(fresh) > 0
	w.logger.Debug("chunk loaded", "chunk", key.String(), "containers", len(ch.containers), "fresh", len(fresh))
	return true, nil
}

// restoreCell finds the live cell a chunk record refers to: first in the
// graph it last belonged to, then anywhere by locator. A cell found in
// neither place is rebuilt from the record and must be inserted.
func (w *World) restoreCell(ctx context.Context, ref store.CellRef) (*cells.Cell, bool, error) {
	var loc locator.Locator
	if err := loc.UnmarshalBinary(ref.Locator); err != nil {
		return nil, false, fmt.Errorf("cell %s: %w", ref.ID, err)
	}
	id, err := uuid.Parse(ref.ID)
	if err != nil {
		return nil, false, fmt.Errorf("cell id %q: %w", ref.ID, err)
	}

	if ref.Graph != "" {
		cell, err := w.resolveFromGraph(ctx, ref.Graph, loc)
		switch {
		case err == nil && cell.ID() == id:
			return w.claim(cell)
		case err == nil, errors.Is(err, cells.ErrUnknownGraphID), errors.Is(err, cells.ErrLocatorNotFound):
			w.logger.Warn("dropping stale graph reference", "cell", ref.ID, "graph", ref.Graph, "locator", loc, "error", err)
		default:
			return nil, false, err
		}
	}

	if cell, ok := w.manager.CellAt(loc); ok {
		if cell.ID() != id {
			return nil, false, fmt.Errorf("cell %s: %w: %s held by cell %s", id, cells.ErrDuplicateLocator, loc, cell.ID())
		}
		return w.claim(cell)
	}

	dirs, err := cells.DecodeDirections(ref.Directions)
	if err != nil {
		return nil, false, fmt.Errorf("cell %s: %w", id, err)
	}
	cell := cells.NewCell(loc,
		cells.WithID(id),
		cells.WithKind(ref.Kind),
		cells.WithModes(locator.ModeMask(ref.Modes)),
		cells.WithDirections(dirs...),
	)
	return cell, false, nil
}

func (w *World) resolveFromGraph(ctx context.Context, rawID string, loc locator.Locator) (*cells.Cell, error) {
	gid, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", cells.ErrUnknownGraphID, rawID)
	}
	g, err := w.manager.Resolve(ctx, w.store, gid)
	if err != nil {
		return nil, err
	}
	return g.CellByLocator(loc)
}

func (w *World) claim(cell *cells.Cell) (*cells.Cell, bool, error) {
	if h, bound := cell.Container(); bound {
		return nil, false, fmt.Errorf("cell %s is already bound to container %d", cell.ID(), h)
	}
	return cell, true, nil
}

// abortLoad drops a partially loaded chunk.
func (w *World) abortLoad(ch *chunk, err error) error {
	for _, c := range ch.containers {
		for _, cell := range c.parts {
			if cell.State() == cells.StateInserted {
				cell.Unbind()
			}
		}
		delete(w.handles, c.handle)
	}
	delete(w.chunks, ch.key)
	return err
}

// UnloadChunk saves a chunk and drops it from memory. Its cells stay in
// their graphs, unbound from any container.
func (w *World) UnloadChunk(ctx context.Context, key store.ChunkKey) error {
	ch, ok := w.chunks[key]
	if !ok {
		return fmt.Errorf("unload chunk %s: %w", key, ErrChunkNotLoaded)
	}
	if err := w.manager.Save(ctx, w.store); err != nil {
		return fmt.Errorf("unload chunk %s: %w", key, err)
	}
	if err := w.saveChunk(ctx, ch); err != nil {
		return err
	}
	for _, c := range ch.containers {
		for _, cell := range c.parts {
			cell.Unbind()
		}
		delete(w.handles, c.handle)
	}
	delete(w.chunks, key)
	w.logger.Debug("chunk unloaded", "chunk", key.String(), "containers", len(ch.containers))
	return nil
}

// Save writes all dirty graphs and resident chunks.
func (w *World) Save(ctx context.Context) error {
	if err := w.manager.Save(ctx, w.store); err != nil {
		return fmt.Errorf("save graphs: %w", err)
	}
	for _, key := range w.Resident() {
		ch := w.chunks[key]
		if !ch.dirty {
			continue
		}
		if err := w.saveChunk(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) saveChunk(ctx context.Context, ch *chunk) error {
	rec, err := ch.record()
	if err != nil {
		return fmt.Errorf("save chunk %s: %w", ch.key, err)
	}
	if err := w.store.SaveChunk(ctx, rec); err != nil {
		return fmt.Errorf("save chunk %s: %w", ch.key, err)
	}
	ch.dirty = false
	return nil
}

func (ch *chunk) record() (store.ChunkRecord, error) {
	rec := store.ChunkRecord{Key: ch.key}

	positions := slices.Collect(maps.Keys(ch.containers))
	slices.SortFunc(positions, comparePos)
	for _, pos := range positions {
		c := ch.containers[pos]
		cr := store.ContainerRecord{Kind: c.kind.String(), X: pos.X, Y: pos.Y, Z: pos.Z}
		for _, cell := range c.Cells() {
			loc, err := cell.Locator().MarshalBinary()
			if err != nil {
				return store.ChunkRecord{}, err
			}
			ref := store.CellRef{
				ID:         cell.ID().String(),
				Kind:       cell.Kind(),
				Modes:      uint8(cell.Modes()),
				Locator:    loc,
				Directions: cells.EncodeDirections(cell.Directions()),
			}
			if gid, ok := cell.GraphID(); ok {
				ref.Graph = gid.String()
			}
			cr.Cells = append(cr.Cells, ref)
		}
		rec.Containers = append(rec.Containers, cr)
	}

	solids := slices.Collect(maps.Keys(ch.solids))
	slices.SortFunc(solids, comparePos)
	for _, p := range solids {
		rec.Solids = append(rec.Solids, store.PosRecord{X: p.X, Y: p.Y, Z: p.Z})
	}
	return rec, nil
}

func comparePos(a, b locator.BlockPos) int {
	return cmp.Or(cmp.Compare(a.X, b.X), cmp.Compare(a.Y, b.Y), cmp.Compare(a.Z, b.Z))
}
