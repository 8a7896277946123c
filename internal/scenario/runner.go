package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/nvandessel/cellgraph/internal/locator"
	"github.com/nvandessel/cellgraph/internal/logging"
	"github.com/nvandessel/cellgraph/internal/store"
	"github.com/nvandessel/cellgraph/internal/world"
)

// ErrExpectation is wrapped by every failed expect step.
var ErrExpectation = errors.New("expectation failed")

// Runner executes scenarios against a world backed by one store.
type Runner struct {
	store  store.Store
	opts   []world.Option
	logger *slog.Logger
	world  *world.World
}

// Result is the state after a scenario ran.
type Result struct {
	// Steps is the number of steps executed.
	Steps    int
	Topology *cells.Topology
	World    *world.World
}

// NewRunner creates a runner. The world is opened with opts on the first
// run and again on every reopen step.
func NewRunner(st store.Store, opts ...world.Option) *Runner {
	return &Runner{store: st, opts: opts, logger: logging.Discard()}
}

// WithLogger sets the logger for step progress.
func (r *Runner) WithLogger(l *slog.Logger) *Runner {
	r.logger = l
	return r
}

// Run executes every step in order and stops at the first error. The
// returned result is non-nil whenever the world was opened.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if r.world == nil {
		w, err := world.Open(ctx, r.store, r.opts...)
		if err != nil {
			return nil, fmt.Errorf("opening world: %w", err)
		}
		r.world = w
	}

	res := &Result{World: r.world}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return r.finish(res), err
		}
		r.logger.Debug("scenario step", "scenario", sc.Name, "step", i, "action", step.Action())
		if err := r.step(ctx, step); err != nil {
			return r.finish(res), fmt.Errorf("step %d (%s): %w", i, step.Action(), err)
		}
		res.Steps++
	}
	return r.finish(res), nil
}

func (r *Runner) finish(res *Result) *Result {
	res.World = r.world
	res.Topology = r.world.Topology()
	return res
}

func (r *Runner) step(ctx context.Context, s Step) error {
	switch {
	case s.Place != nil:
		return r.place(ctx, s.Place)
	case s.Remove != nil:
		pos, face, err := s.Remove.Resolve()
		if err != nil {
			return err
		}
		return r.world.Remove(pos, face)
	case s.Reconnect != nil:
		pos, face, err := s.Reconnect.Target().Resolve()
		if err != nil {
			return err
		}
		dirs, err := parseDirections(s.Reconnect.Directions)
		if err != nil {
			return err
		}
		return r.world.Reconnect(pos, face, dirs)
	case s.Solid != nil:
		pos, err := s.Solid.Pos.Pos()
		if err != nil {
			return err
		}
		return r.world.PlaceSolid(ctx, pos)
	case s.Save != nil:
		return r.world.Save(ctx)
	case s.Unload != nil:
		key, err := s.Unload.key()
		if err != nil {
			return err
		}
		return r.world.UnloadChunk(ctx, key)
	case s.Load != nil:
		key, err := s.Load.key()
		if err != nil {
			return err
		}
		return r.world.LoadChunk(ctx, key)
	case s.Reopen != nil:
		return r.reopen(ctx)
	case s.Expect != nil:
		return r.expect(s.Expect)
	}
	return errors.New("no action")
}

func (r *Runner) place(ctx context.Context, p *PlaceStep) error {
	kind, err := world.ParseKind(p.Kind)
	if err != nil {
		return err
	}
	pos, err := p.Pos.Pos()
	if err != nil {
		return err
	}
	modes, err := parseModes(p.Modes)
	if err != nil {
		return err
	}
	dirs, err := parseDirections(p.Directions)
	if err != nil {
		return err
	}
	spec := world.CellSpec{Kind: p.Cell, Modes: modes, Directions: dirs}
	if spec.Kind == "" {
		spec.Kind = "wire"
	}

	switch kind {
	case world.KindBlock:
		if p.Face != "" {
			return fmt.Errorf("block at %s: face is not allowed", pos)
		}
		_, err = r.world.PlaceBlock(ctx, pos, spec)
	default:
		face, ferr := parseFace(p.Face)
		if ferr != nil {
			return ferr
		}
		_, err = r.world.PlacePart(ctx, pos, face, spec)
	}
	return err
}

// reopen saves the world, opens a fresh one on the same store and loads
// every stored chunk.
func (r *Runner) reopen(ctx context.Context) error {
	if err := r.world.Save(ctx); err != nil {
		return err
	}
	w, err := world.Open(ctx, r.store, r.opts...)
	if err != nil {
		return fmt.Errorf("reopening world: %w", err)
	}
	keys, err := r.store.ListChunks(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := w.LoadChunk(ctx, key); err != nil {
			return err
		}
	}
	r.world = w
	return nil
}

func (r *Runner) expect(e *Expect) error {
	topo := r.world.Topology()
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrExpectation}, args...)...))
	}

	if e.Graphs != nil && topo.Len() != *e.Graphs {
		fail("graphs = %d, want %d", topo.Len(), *e.Graphs)
	}
	if e.Cells != nil {
		total := 0
		for _, size := range topo.Sizes() {
			total += size
		}
		if total != *e.Cells {
			fail("cells = %d, want %d", total, *e.Cells)
		}
	}
	if e.Sizes != nil {
		want := slices.Sorted(slices.Values(e.Sizes))
		if got := topo.Sizes(); !slices.Equal(got, want) {
			fail("sizes = %v, want %v", got, want)
		}
	}

	for _, group := range e.Connected {
		var first uuid.UUID
		for i, t := range group {
			id, err := r.graphOf(topo, t)
			if err != nil {
				errs = append(errs, err)
				break
			}
			if i == 0 {
				first = id
			} else if id != first {
				fail("%v and %v are not connected", group[0].Pos, t.Pos)
			}
		}
	}
	for _, pair := range e.Separated {
		if len(pair) != 2 {
			errs = append(errs, fmt.Errorf("separated entry %v: want a pair", pair))
			continue
		}
		a, errA := r.graphOf(topo, pair[0])
		b, errB := r.graphOf(topo, pair[1])
		if err := errors.Join(errA, errB); err != nil {
			errs = append(errs, err)
			continue
		}
		if a == b {
			fail("%v and %v share graph %s", pair[0].Pos, pair[1].Pos, a)
		}
	}
	return errors.Join(errs...)
}

// graphOf finds the graph holding the cell at t. Cells in unloaded chunks
// are found through the manager's locator index.
func (r *Runner) graphOf(topo *cells.Topology, t Target) (uuid.UUID, error) {
	pos, face, err := t.Resolve()
	if err != nil {
		return uuid.Nil, err
	}
	cell, ok := r.world.Manager().CellAt(locator.At(pos, face))
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: no cell at %s %s", ErrExpectation, pos, face)
	}
	id, ok := topo.GraphOf(cell.ID())
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: cell at %s %s has no graph", ErrExpectation, pos, face)
	}
	return id, nil
}

func (c *ChunkStep) key() (store.ChunkKey, error) {
	if len(c.Chunk) != 2 {
		return store.ChunkKey{}, fmt.Errorf("chunk %v: want [x, z]", c.Chunk)
	}
	return store.ChunkKey{X: c.Chunk[0], Z: c.Chunk[1]}, nil
}
