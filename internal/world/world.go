// Package world is a sparse, chunked 3-D world of cell containers.
//
// The world owns the container registry that cell handles resolve through,
// answers the spatial queries of the neighbor scanner, and moves chunks in
// and out of memory. All graphs of a world stay resident; chunks are loaded
// and unloaded independently and their cells re-resolved through the graph
// they last belonged to.
//
// A World is not safe for concurrent use. Readers on other goroutines use
// Topology snapshots.
package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/nvandessel/cellgraph/internal/locator"
	"github.com/nvandessel/cellgraph/internal/logging"
	"github.com/nvandessel/cellgraph/internal/store"
)

var (
	// ErrOccupied is returned when placing into a position or face that is taken.
	ErrOccupied = errors.New("position occupied")
	// ErrNoCell is returned when no cell exists at the requested place.
	ErrNoCell = errors.New("no cell at position")
	// ErrChunkNotLoaded is returned when operating on a chunk that is not resident.
	ErrChunkNotLoaded = errors.New("chunk not loaded")
)

// DefaultChunkSize is the default chunk edge length in blocks.
const DefaultChunkSize = 16

// CellSpec describes a cell to place.
type CellSpec struct {
	Kind string
	// Modes defaults to planar for blocks and all modes for parts.
	Modes locator.ModeMask
	// Directions restricts connections to remotes lying in these directions.
	Directions []locator.Direction
}

// World is one world of containers and the cell graphs connecting them.
type World struct {
	store      store.Store
	manager    *cells.Manager
	conns      *cells.Connections
	scanner    cells.Scanner
	chunks     map[store.ChunkKey]*chunk
	handles    map[cells.Handle]*Container
	nextHandle cells.Handle
	chunkShift int
	forceLoad  bool
	logger     *slog.Logger
	events     *logging.EventLog
}

// Option configures a World.
type Option func(*World) error

// WithChunkSize sets the chunk edge length. It must be a power of two.
func WithChunkSize(n int) Option {
	return func(w *World) error {
		if n <= 0 || n&(n-1) != 0 {
			return fmt.Errorf("chunk size %d is not a power of two", n)
		}
		w.chunkShift = bits.TrailingZeros(uint(n))
		return nil
	}
}

// WithDiagonalWrap allows wrapped connections around occupied corners.
func WithDiagonalWrap(allow bool) Option {
	return func(w *World) error {
		w.scanner.AllowDiagonalWrap = allow
		return nil
	}
}

// WithForceLoad makes placements load stored neighbor chunks first.
func WithForceLoad(force bool) Option {
	return func(w *World) error {
		w.forceLoad = force
		return nil
	}
}

// WithLogger sets the logger shared with the connection manager.
func WithLogger(l *slog.Logger) Option {
	return func(w *World) error {
		w.logger = l
		return nil
	}
}

// WithEventLog sets the topology event log.
func WithEventLog(e *logging.EventLog) Option {
	return func(w *World) error {
		w.events = e
		return nil
	}
}

// Open creates a world backed by st and loads every stored graph. No chunk
// is resident until LoadChunk or a placement needs it.
func Open(ctx context.Context, st store.Store, opts ...Option) (*World, error) {
	if st == nil {
		return nil, fmt.Errorf("world requires a store")
	}
	w := &World{
		store:     st,
		manager:   cells.NewManager(),
		chunks:    make(map[store.ChunkKey]*chunk),
		handles:   make(map[cells.Handle]*Container),
		forceLoad: true,
		logger:    logging.Discard(),
	}
	w.chunkShift = bits.TrailingZeros(DefaultChunkSize)
	w.scanner.View = w
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.conns = cells.NewConnections(w.manager, w,
		cells.WithLogger(w.logger),
		cells.WithEventLog(w.events),
	)

	if err := w.manager.LoadAll(ctx, st); err != nil {
		return nil, fmt.Errorf("load graphs: %w", err)
	}
	if err := w.conns.Republish(); err != nil {
		return nil, err
	}
	w.logger.Debug("world opened", "graphs", w.manager.Len(), "chunk_size", 1<<w.chunkShift)
	return w, nil
}

// Manager returns the graph registry.
func (w *World) Manager() *cells.Manager { return w.manager }

// Connections returns the connection manager.
func (w *World) Connections() *cells.Connections { return w.conns }

// Topology returns the latest published topology snapshot.
func (w *World) Topology() *cells.Topology { return w.conns.Snapshot() }

// ChunkOf returns the key of the chunk holding pos.
func (w *World) ChunkOf(pos locator.BlockPos) store.ChunkKey { return w.chunkOf(pos) }

func (w *World) chunkOf(pos locator.BlockPos) store.ChunkKey {
	return store.ChunkKey{X: pos.X >> w.chunkShift, Z: pos.Z >> w.chunkShift}
}

// ContainerAt implements cells.View.
func (w *World) ContainerAt(pos locator.BlockPos) (cells.Container, bool) {
	c, ok := w.containerAt(pos)
	if !ok {
		return nil, false
	}
	return c, true
}

// Occupied implements cells.View.
func (w *World) Occupied(pos locator.BlockPos) bool {
	ch, ok := w.chunks[w.chunkOf(pos)]
	if !ok {
		return false
	}
	_, solid := ch.solids[pos]
	_, container := ch.containers[pos]
	return solid || container
}

// Container implements cells.Resolver.
func (w *World) Container(h cells.Handle) (cells.Container, bool) {
	c, ok := w.handles[h]
	if !ok {
		return nil, false
	}
	return c, true
}

func (w *World) containerAt(pos locator.BlockPos) (*Container, bool) {
	ch, ok := w.chunks[w.chunkOf(pos)]
	if !ok {
		return nil, false
	}
	c, ok := ch.containers[pos]
	return c, ok
}

// CellAt returns the resident cell at pos on face. Block cells are on the
// top face.
func (w *World) CellAt(pos locator.BlockPos, face locator.Direction) (*cells.Cell, bool) {
	c, ok := w.containerAt(pos)
	if !ok {
		return nil, false
	}
	return c.Cell(face)
}

// Containers returns the number of resident containers.
func (w *World) Containers() int { return len(w.handles) }

// PlaceBlock places a block container with one cell at pos.
func (w *World) PlaceBlock(ctx context.Context, pos locator.BlockPos, spec CellSpec) (*cells.Cell, error) {
	if err := w.prepare(ctx, pos); err != nil {
		return nil, err
	}
	if w.Occupied(pos) {
		return nil, fmt.Errorf("place block at %s: %w", pos, ErrOccupied)
	}
	if spec.Modes == 0 {
		spec.Modes = locator.Modes(locator.Planar)
	}

	ch := w.chunks[w.chunkOf(pos)]
	c := w.register(ch, KindBlock, pos)
	cell := newCell(pos, blockFace, spec)
	if err := w.attach(c, blockFace, cell); err != nil {
		w.unregister(ch, c)
		return nil, fmt.Errorf("place block at %s: %w", pos, err)
	}
	return cell, nil
}

// PlacePart places a part with one cell on face of the multipart container
// at pos, creating the container if needed.
func (w *World) PlacePart(ctx context.Context, pos locator.BlockPos, face locator.Direction, spec CellSpec) (*cells.Cell, error) {
	if !face.Valid() {
		return nil, fmt.Errorf("place part at %s: invalid face %d", pos, face)
	}
	if err := w.prepare(ctx, pos); err != nil {
		return nil, err
	}
	if spec.Modes == 0 {
		spec.Modes = locator.AllModes
	}

	ch := w.chunks[w.chunkOf(pos)]
	c, exists := ch.containers[pos]
	switch {
	case exists && c.kind != KindMultipart:
		return nil, fmt.Errorf("place part at %s: %w by %s", pos, ErrOccupied, c.kind)
	case !exists && w.Occupied(pos):
		return nil, fmt.Errorf("place part at %s: %w by solid", pos, ErrOccupied)
	case exists:
		if _, taken := c.parts[face]; taken {
			return nil, fmt.Errorf("place part at %s %s: %w", pos, face, ErrOccupied)
		}
	default:
		c = w.register(ch, KindMultipart, pos)
	}

	cell := newCell(pos, face, spec)
	if err := w.attach(c, face, cell); err != nil {
		if !exists {
			w.unregister(ch, c)
		}
		return nil, fmt.Errorf("place part at %s %s: %w", pos, face, err)
	}
	return cell, nil
}

// PlaceSolid places a plain block without cells. Solids obstruct wrapped
// connections.
func (w *World) PlaceSolid(ctx context.Context, pos locator.BlockPos) error {
	if err := w.prepare(ctx, pos); err != nil {
		return err
	}
	if w.Occupied(pos) {
		return fmt.Errorf("place solid at %s: %w", pos, ErrOccupied)
	}
	ch := w.chunks[w.chunkOf(pos)]
	ch.solids[pos] = struct{}{}
	ch.dirty = true
	return nil
}

// RemoveSolid removes a plain block.
func (w *World) RemoveSolid(pos locator.BlockPos) error {
	ch, ok := w.chunks[w.chunkOf(pos)]
	if !ok {
		return fmt.Errorf("remove solid at %s: %w", pos, ErrChunkNotLoaded)
	}
	if _, ok := ch.solids[pos]; !ok {
		return fmt.Errorf("remove solid at %s: %w", pos, ErrNoCell)
	}
	delete(ch.solids, pos)
	ch.dirty = true
	return nil
}

// Remove destroys the cell on face of the container at pos and removes the
// container once it is empty. Block cells are on the top face.
func (w *World) Remove(pos locator.BlockPos, face locator.Direction) error {
	c, ok := w.containerAt(pos)
	if !ok {
		return fmt.Errorf("remove at %s: %w", pos, ErrNoCell)
	}
	cell, ok := c.parts[face]
	if !ok {
		return fmt.Errorf("remove at %s %s: %w", pos, face, ErrNoCell)
	}
	if err := w.conns.Destroy(cell); err != nil {
		return fmt.Errorf("remove at %s %s: %w", pos, face, err)
	}
	delete(c.parts, face)

	ch := w.chunks[w.chunkOf(pos)]
	ch.dirty = true
	if len(c.parts) == 0 {
		w.unregister(ch, c)
	}
	return nil
}

// Reconnect re-evaluates the connections of the cell on face at pos after
// replacing its direction restriction. Empty dirs removes the restriction.
func (w *World) Reconnect(pos locator.BlockPos, face locator.Direction, dirs []locator.Direction) error {
	cell, ok := w.CellAt(pos, face)
	if !ok {
		return fmt.Errorf("reconnect at %s %s: %w", pos, face, ErrNoCell)
	}
	var ruleErr error
	err := w.conns.Reconnect(cell, func() {
		ruleErr = cell.SetDirections(dirs...)
	})
	if err = errors.Join(err, ruleErr); err != nil {
		return fmt.Errorf("reconnect at %s %s: %w", pos, face, err)
	}
	return nil
}

func newCell(pos locator.BlockPos, face locator.Direction, spec CellSpec) *cells.Cell {
	opts := []cells.Option{cells.WithModes(spec.Modes), cells.WithDirections(spec.Directions...)}
	if spec.Kind != "" {
		opts = append(opts, cells.WithKind(spec.Kind))
	}
	return cells.NewCell(locator.At(pos, face), opts...)
}

// attach binds cell to c and inserts it. On failure the container is left
// as it was.
func (w *World) attach(c *Container, face locator.Direction, cell *cells.Cell) error {
	c.parts[face] = cell
	cell.Bind(c.handle)
	if err := w.conns.Insert(cell); err != nil {
		delete(c.parts, face)
		cell.Unbind()
		return err
	}
	return nil
}

func (w *World) register(ch *chunk, kind Kind, pos locator.BlockPos) *Container {
	w.nextHandle++
	c := &Container{
		world:  w,
		handle: w.nextHandle,
		kind:   kind,
		pos:    pos,
		parts:  make(map[locator.Direction]*cells.Cell),
	}
	ch.containers[pos] = c
	ch.dirty = true
	w.handles[c.handle] = c
	return c
}

func (w *World) unregister(ch *chunk, c *Container) {
	for _, cell := range c.parts {
		cell.Unbind()
	}
	delete(ch.containers, c.pos)
	delete(w.handles, c.handle)
	ch.dirty = true
}
