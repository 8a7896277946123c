package cells

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nvandessel/cellgraph/internal/locator"
	"github.com/nvandessel/cellgraph/internal/logging"
)

// line places n cells on top of the blocks (0..n-1, 0, 0), with ids 1..n.
func line(g *testGrid, n int) []*Cell {
	out := make([]*Cell, n)
	for i := range n {
		out[i] = g.place(uint64(i+1), locator.Pos(i, 0, 0), locator.Up)
	}
	return out
}

func TestInsert_Singleton(t *testing.T) {
	g := newTestGrid(t)
	c := g.place(1, locator.Pos(0, 0, 0), locator.Up)

	if c.State() != StateInserted {
		t.Errorf("State() = %s, want inserted", c.State())
	}
	if g.manager.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", g.manager.Len())
	}
	gr, err := g.manager.Get(graphOf(t, c))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gr.Size() != 1 || c.ConnectionCount() != 0 {
		t.Errorf("singleton graph size = %d, connections = %d", gr.Size(), c.ConnectionCount())
	}
	checkInvariants(t, g.manager)
}

func TestInsert_Line(t *testing.T) {
	g := newTestGrid(t)
	cells := line(g, 5)

	if g.manager.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", g.manager.Len())
	}
	wantConns := []int{1, 2, 2, 2, 1}
	for i, c := range cells {
		if c.ConnectionCount() != wantConns[i] {
			t.Errorf("cell %d has %d connections, want %d", i, c.ConnectionCount(), wantConns[i])
		}
		for _, conn := range c.Connections() {
			if conn.Mode != locator.Planar {
				t.Errorf("cell %d mode = %s, want planar", i, conn.Mode)
			}
		}
	}
	checkInvariants(t, g.manager)
}

func TestRemove_MiddleSplits(t *testing.T) {
	g := newTestGrid(t)
	cells := line(g, 5)
	original := graphOf(t, cells[0])

	g.remove(cells[2])

	if g.manager.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.manager.Len())
	}
	if got := g.conns.Snapshot().Sizes(); !slices.Equal(got, []int{2, 2}) {
		t.Errorf("Sizes() = %v, want [2 2]", got)
	}
	left, right := graphOf(t, cells[0]), graphOf(t, cells[3])
	if left == right {
		t.Fatal("split halves share a graph")
	}
	if graphOf(t, cells[1]) != left || graphOf(t, cells[4]) != right {
		t.Error("split halves are not contiguous")
	}
	// Equal sizes: the half holding the smallest cell identity keeps the graph.
	if left != original {
		t.Errorf("left half graph = %s, want original %s", left, original)
	}
	if cells[1].ConnectionCount() != 1 || cells[3].ConnectionCount() != 1 {
		t.Error("former neighbors kept edges to the removed cell")
	}
	if cells[2].State() != StateUnrealized || cells[2].ConnectionCount() != 0 {
		t.Errorf("removed cell state = %s with %d connections", cells[2].State(), cells[2].ConnectionCount())
	}
	if _, ok := cells[2].GraphID(); ok {
		t.Error("removed cell still records a graph")
	}
	checkInvariants(t, g.manager)
}

func TestRemove_LargestComponentKeepsIdentity(t *testing.T) {
	g := newTestGrid(t)
	cells := line(g, 6)
	original := graphOf(t, cells[0])

	g.remove(cells[1])

	if got := graphOf(t, cells[4]); got != original {
		t.Errorf("larger half graph = %s, want original %s", got, original)
	}
	if graphOf(t, cells[0]) == original {
		t.Error("smaller half kept the original graph")
	}
	checkInvariants(t, g.manager)
}

func TestRemove_EndDoesNotSplit(t *testing.T) {
	g := newTestGrid(t)
	cells := line(g, 5)
	original := graphOf(t, cells[1])

	g.remove(cells[0])

	if g.manager.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", g.manager.Len())
	}
	if got := graphOf(t, cells[1]); got != original {
		t.Errorf("graph = %s, want %s", got, original)
	}
	checkInvariants(t, g.manager)
}

func TestRemove_LastCellDestroysGraph(t *testing.T) {
	g := newTestGrid(t)
	c := g.place(1, locator.Pos(0, 0, 0), locator.Up)
	id := graphOf(t, c)

	g.remove(c)

	if g.manager.Contains(id) {
		t.Error("empty graph is still tracked")
	}
	if g.conns.Snapshot().Len() != 0 {
		t.Errorf("snapshot Len() = %d, want 0", g.conns.Snapshot().Len())
	}
}

func TestRemove_RingStaysConnected(t *testing.T) {
	g := newTestGrid(t)
	var ring []*Cell
	positions := []locator.BlockPos{
		locator.Pos(0, 0, 0), locator.Pos(1, 0, 0), locator.Pos(2, 0, 0),
		locator.Pos(2, 0, 1), locator.Pos(2, 0, 2), locator.Pos(1, 0, 2),
		locator.Pos(0, 0, 2), locator.Pos(0, 0, 1),
	}
	for i, p := range positions {
		ring = append(ring, g.place(uint64(i+1), p, locator.Up))
	}
	original := graphOf(t, ring[0])

	g.remove(ring[1])

	if g.manager.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", g.manager.Len())
	}
	if graphOf(t, ring[0]) != original {
		t.Error("ring lost its graph identity")
	}
	checkInvariants(t, g.manager)
}

func TestInsert_MergeKeepsLargest(t *testing.T) {
	g := newTestGrid(t)
	a := g.place(1, locator.Pos(0, 0, 0), locator.Up)
	g.place(2, locator.Pos(1, 0, 0), locator.Up)
	d := g.place(4, locator.Pos(3, 0, 0), locator.Up)
	g.place(5, locator.Pos(4, 0, 0), locator.Up)
	g.place(6, locator.Pos(5, 0, 0), locator.Up)
	small, large := graphOf(t, a), graphOf(t, d)

	c := g.place(3, locator.Pos(2, 0, 0), locator.Up)

	if g.manager.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", g.manager.Len())
	}
	if got := graphOf(t, c); got != large {
		t.Errorf("merged graph = %s, want largest %s", got, large)
	}
	if g.manager.Contains(small) {
		t.Error("absorbed graph is still tracked")
	}
	if c.ConnectionCount() != 2 {
		t.Errorf("bridge has %d connections, want 2", c.ConnectionCount())
	}
	checkInvariants(t, g.manager)
}

func TestInsert_MergeTieKeepsSmallerIdentity(t *testing.T) {
	g := newTestGrid(t)
	a := g.place(1, locator.Pos(0, 0, 0), locator.Up)
	c := g.place(3, locator.Pos(2, 0, 0), locator.Up)
	first, second := graphOf(t, a), graphOf(t, c)
	if compareIDs(first, second) >= 0 {
		t.Fatalf("identity source is not ordered: %s >= %s", first, second)
	}

	g.place(2, locator.Pos(1, 0, 0), locator.Up)

	if got := graphOf(t, c); got != first {
		t.Errorf("merged graph = %s, want %s", got, first)
	}
	checkInvariants(t, g.manager)
}

func TestInsert_BridgeDestroysExactlyOneGraph(t *testing.T) {
	g := newTestGrid(t)
	if g.conns.Snapshot().Len() != 0 {
		t.Fatal("new world has graphs")
	}

	a := g.place(1, locator.Pos(0, 0, 0), locator.Up)
	c := g.place(3, locator.Pos(2, 0, 0), locator.Up)
	before := []string{graphOf(t, a).String(), graphOf(t, c).String()}
	if g.conns.Snapshot().Len() != 2 {
		t.Fatalf("snapshot Len() = %d, want 2", g.conns.Snapshot().Len())
	}

	g.place(2, locator.Pos(1, 0, 0), locator.Up)

	snap := g.conns.Snapshot()
	if snap.Len() != 1 {
		t.Fatalf("snapshot Len() = %d, want 1", snap.Len())
	}
	survivors := 0
	for _, id := range before {
		for _, v := range snap.Graphs() {
			if v.ID.String() == id {
				survivors++
			}
		}
	}
	if survivors != 1 {
		t.Errorf("%d original graphs survived, want exactly 1", survivors)
	}
}

func TestInsert_Errors(t *testing.T) {
	g := newTestGrid(t)
	c := g.place(1, locator.Pos(0, 0, 0), locator.Up)

	if err := g.conns.Insert(c); !errors.Is(err, ErrAlreadyInserted) {
		t.Errorf("Insert() twice error = %v, want ErrAlreadyInserted", err)
	}

	dup := g.newCell(2, locator.Pos(0, 0, 0), locator.Up)
	if err := g.tryPlace(dup); !errors.Is(err, ErrDuplicateLocator) {
		t.Errorf("Insert() duplicate locator error = %v, want ErrDuplicateLocator", err)
	}
	if dup.State() != StateUnrealized {
		t.Errorf("rejected cell state = %s", dup.State())
	}

	loose := g.newCell(3, locator.Pos(5, 0, 0), locator.Up)
	if err := g.conns.Insert(loose); !errors.Is(err, ErrNoContainer) {
		t.Errorf("Insert() unbound error = %v, want ErrNoContainer", err)
	}

	if err := g.conns.Remove(loose); !errors.Is(err, ErrNotInserted) {
		t.Errorf("Remove() unrealized error = %v, want ErrNotInserted", err)
	}
	checkInvariants(t, g.manager)
}

func TestDestroy(t *testing.T) {
	g := newTestGrid(t)
	cells := line(g, 3)

	if err := g.conns.Destroy(cells[1]); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if cells[1].State() != StateDestroyed {
		t.Errorf("State() = %s, want destroyed", cells[1].State())
	}
	if g.manager.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.manager.Len())
	}
	if err := g.conns.Insert(cells[1]); !errors.Is(err, ErrCellDestroyed) {
		t.Errorf("Insert() destroyed error = %v, want ErrCellDestroyed", err)
	}
	if err := g.conns.Destroy(cells[1]); !errors.Is(err, ErrCellDestroyed) {
		t.Errorf("Destroy() twice error = %v, want ErrCellDestroyed", err)
	}
}

func TestReconnect_RuleChange(t *testing.T) {
	g := newTestGrid(t)
	cells := line(g, 3)

	// Restrict the middle cell to its east side only.
	err := g.conns.Reconnect(cells[1], func() {
		if err := cells[1].SetRule(DirectionRule(locator.East)); err != nil {
			t.Errorf("SetRule() error = %v", err)
		}
	})
	if err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}

	if cells[1].ConnectedTo(cells[0].ID()) {
		t.Error("middle cell still connects west")
	}
	if !cells[1].ConnectedTo(cells[2].ID()) {
		t.Error("middle cell lost its east connection")
	}
	if g.manager.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.manager.Len())
	}
	checkInvariants(t, g.manager)
}

func TestSetRule_RequiresUnrealized(t *testing.T) {
	g := newTestGrid(t)
	c := g.place(1, locator.Pos(0, 0, 0), locator.Up)
	if err := c.SetRule(DirectionRule(locator.East)); err == nil {
		t.Error("SetRule() on an inserted cell should fail")
	}
}

func TestInsert_RuleRejectsBothWays(t *testing.T) {
	g := newTestGrid(t)
	g.place(1, locator.Pos(0, 0, 0), locator.Up, WithRule(DirectionRule(locator.North)))
	b := g.place(2, locator.Pos(1, 0, 0), locator.Up)

	if b.ConnectionCount() != 0 || g.manager.Len() != 2 {
		t.Errorf("rule was bypassed: %d connections, %d graphs", b.ConnectionCount(), g.manager.Len())
	}
}

func TestInsert_ModeMask(t *testing.T) {
	g := newTestGrid(t)
	g.place(1, locator.Pos(0, 0, 0), locator.Up, WithModes(locator.Modes(locator.Inner)))
	b := g.place(2, locator.Pos(1, 0, 0), locator.Up)

	if b.ConnectionCount() != 0 {
		t.Error("planar connection made to a cell that only allows inner")
	}
}

func TestInsert_InnerConnection(t *testing.T) {
	g := newTestGrid(t)
	p := locator.Pos(0, 0, 0)
	floor := g.place(1, p, locator.Up)
	wall := g.place(2, p, locator.North)

	conn, ok := wall.ConnectionTo(floor.ID())
	if !ok {
		t.Fatal("inner neighbors did not connect")
	}
	if conn.Mode != locator.Inner {
		t.Errorf("mode = %s, want inner", conn.Mode)
	}
	checkInvariants(t, g.manager)
}

func TestInsert_WrappedConnection(t *testing.T) {
	tests := []struct {
		name        string
		obstructed  bool
		allowCorner bool
		wantGraphs  int
	}{
		{"clear corner", false, false, 1},
		{"obstructed corner", true, false, 2},
		{"obstructed corner allowed", true, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGrid(t)
			g.scanner.AllowDiagonalWrap = tt.allowCorner
			if tt.obstructed {
				g.solids[locator.Pos(1, 1, 0)] = true
			}

			top := g.place(1, locator.Pos(0, 1, 0), locator.Up)
			side := g.place(2, locator.Pos(1, 0, 0), locator.East)

			if g.manager.Len() != tt.wantGraphs {
				t.Fatalf("Len() = %d, want %d", g.manager.Len(), tt.wantGraphs)
			}
			if tt.wantGraphs == 1 {
				conn, _ := top.ConnectionTo(side.ID())
				if conn.Mode != locator.Wrapped {
					t.Errorf("mode = %s, want wrapped", conn.Mode)
				}
			}
			checkInvariants(t, g.manager)
		})
	}
}

func TestCallbacks(t *testing.T) {
	g := newTestGrid(t)
	cells := line(g, 2)
	left := g.containers[locator.Pos(0, 0, 0)]
	right := g.containers[locator.Pos(1, 0, 0)]

	if left.connected != 1 || right.connected != 1 {
		t.Errorf("connected callbacks = %d, %d, want 1, 1", left.connected, right.connected)
	}
	if left.changed != 2 || right.changed != 1 {
		t.Errorf("topology callbacks = %d, %d, want 2, 1", left.changed, right.changed)
	}

	g.remove(cells[1])
	if left.disconnected != 1 {
		t.Errorf("disconnected callbacks = %d, want 1", left.disconnected)
	}
}

func TestReentrantMutationRejected(t *testing.T) {
	g := newTestGrid(t)
	a := g.place(1, locator.Pos(0, 0, 0), locator.Up)

	var reentered error
	g.containers[locator.Pos(0, 0, 0)].reenter = func() {
		reentered = g.conns.Remove(a)
	}
	g.place(2, locator.Pos(1, 0, 0), locator.Up)

	if !errors.Is(reentered, ErrConcurrentMutation) {
		t.Errorf("re-entrant Remove() error = %v, want ErrConcurrentMutation", reentered)
	}
	if a.State() != StateInserted {
		t.Error("re-entrant call mutated state")
	}
	checkInvariants(t, g.manager)
}

func TestSnapshot_IsImmutable(t *testing.T) {
	g := newTestGrid(t)
	cells := line(g, 3)
	before := g.conns.Snapshot()

	g.remove(cells[1])
	after := g.conns.Snapshot()

	if before.Len() != 1 || after.Len() != 2 {
		t.Errorf("snapshot lengths = %d, %d, want 1, 2", before.Len(), after.Len())
	}
	if after.Version <= before.Version {
		t.Errorf("Version did not advance: %d -> %d", before.Version, after.Version)
	}
	if _, ok := before.GraphOf(cells[1].ID()); !ok {
		t.Error("old snapshot lost a cell")
	}
	if _, ok := after.GraphOf(cells[1].ID()); ok {
		t.Error("new snapshot still holds the removed cell")
	}
}

func TestManager_Stats(t *testing.T) {
	g := newTestGrid(t)
	line(g, 3)
	g.place(9, locator.Pos(9, 0, 9), locator.Up)

	want := Stats{Graphs: 2, Cells: 4, LargestSize: 3}
	if got := g.manager.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestRemove_IsolatedMemberLeavesStateIntact(t *testing.T) {
	g := newTestGrid(t)
	a := g.place(1, locator.Pos(0, 0, 0), locator.Up)
	b := g.place(2, locator.Pos(7, 0, 0), locator.Up)

	ga, err := g.manager.Get(graphOf(t, a))
	if err != nil {
		t.Fatal(err)
	}
	gb, err := g.manager.Get(graphOf(t, b))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.manager.move(gb, ga, b); err != nil {
		t.Fatal(err)
	}
	g.manager.Destroy(gb)
	if err := g.conns.Republish(); err != nil {
		t.Fatal(err)
	}
	before := g.conns.Snapshot()
	changed := g.containers[locator.Pos(0, 0, 0)].changed

	for _, op := range []struct {
		name string
		run  func() error
	}{
		{"remove", func() error { return g.conns.Remove(a) }},
		{"reconnect", func() error { return g.conns.Reconnect(a, nil) }},
		{"destroy", func() error { return g.conns.Destroy(a) }},
	} {
		if err := op.run(); !errors.Is(err, ErrDisconnectedGraph) {
			t.Errorf("%s error = %v, want ErrDisconnectedGraph", op.name, err)
		}
	}

	if a.State() != StateInserted {
		t.Errorf("state = %s, want inserted", a.State())
	}
	if id, ok := a.GraphID(); !ok || id != ga.ID() {
		t.Errorf("graph = %s, want %s", id, ga.ID())
	}
	if ga.Size() != 2 {
		t.Errorf("Size() = %d, want 2", ga.Size())
	}
	if _, ok := g.manager.CellAt(a.Locator()); !ok {
		t.Error("locator index lost the cell")
	}
	if g.conns.Snapshot() != before {
		t.Error("a rejected removal published a snapshot")
	}
	if got := g.containers[locator.Pos(0, 0, 0)].changed; got != changed {
		t.Errorf("OnTopologyChanged calls = %d, want %d", got, changed)
	}
}

// slot is a cell position in the shuffled topology tests.
type slot struct {
	pos  locator.BlockPos
	face locator.Direction
}

// adjacent reports whether cells at a and b must connect in a world without
// wrapped neighbors.
func adjacent(a, b slot) bool {
	if a.pos == b.pos {
		return slices.Contains(a.face.Perpendicular(), b.face)
	}
	if a.face != b.face {
		return false
	}
	dir, ok := a.pos.DirectionTo(b.pos)
	return ok && slices.Contains(a.face.Perpendicular(), dir)
}

// checkComponents compares the registry and the published snapshot with
// components computed from geometry alone.
func checkComponents(t *testing.T, g *testGrid, live map[slot]*Cell) {
	t.Helper()
	checkInvariants(t, g.manager)

	slots := slices.Collect(maps.Keys(live))
	comp := make(map[slot]int, len(slots))
	components := 0
	for _, s := range slots {
		if _, ok := comp[s]; ok {
			continue
		}
		comp[s] = components
		queue := []slot{s}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, o := range slots {
				if _, ok := comp[o]; !ok && adjacent(cur, o) {
					comp[o] = components
					queue = append(queue, o)
				}
			}
		}
		components++
	}
	if g.manager.Len() != components {
		t.Fatalf("Len() = %d, want %d components", g.manager.Len(), components)
	}

	for _, s := range slots {
		c := live[s]
		degree := 0
		for _, o := range slots {
			if o == s || !adjacent(s, o) {
				continue
			}
			degree++
			if !c.ConnectedTo(live[o].ID()) {
				t.Errorf("%s is not connected to %s", c, live[o])
			}
			if graphOf(t, c) != graphOf(t, live[o]) {
				t.Errorf("%s and %s are adjacent but in different graphs", c, live[o])
			}
		}
		if c.ConnectionCount() != degree {
			t.Errorf("%s has %d connections, want %d", c, c.ConnectionCount(), degree)
		}
	}

	snap := g.conns.Snapshot()
	if snap.Len() != g.manager.Len() {
		t.Errorf("snapshot Len() = %d, registry %d", snap.Len(), g.manager.Len())
	}
	for _, gr := range g.manager.AllGraphs() {
		view, ok := snap.Graph(gr.ID())
		if !ok {
			t.Errorf("snapshot misses graph %s", gr.ID())
			continue
		}
		if view.Size() != gr.Size() {
			t.Errorf("snapshot graph %s size = %d, want %d", gr.ID(), view.Size(), gr.Size())
		}
		for c := range gr.Cells() {
			if id, ok := snap.GraphOf(c.ID()); !ok || id != gr.ID() {
				t.Errorf("snapshot puts %s in %s, want %s", c, id, gr.ID())
			}
		}
	}
}

func TestTopology_ShuffledOperations(t *testing.T) {
	var slots []slot
	for x := range 4 {
		for z := range 4 {
			slots = append(slots, slot{locator.Pos(x, 0, z), locator.Up})
		}
	}
	for x := range 4 {
		slots = append(slots, slot{locator.Pos(x, 0, 0), locator.North})
	}

	for seed := uint64(1); seed <= 30; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed))
			g := newTestGrid(t)
			live := make(map[slot]*Cell, len(slots))
			cells := make(map[slot]*Cell, len(slots))

			for _, i := range rng.Perm(len(slots)) {
				s := slots[i]
				c := g.place(uint64(i+1), s.pos, s.face)
				cells[s] = c
				live[s] = c
				checkComponents(t, g, live)
			}
			if g.manager.Len() != 1 {
				t.Fatalf("Len() = %d after inserting everything, want 1", g.manager.Len())
			}

			var removed []slot
			for _, i := range rng.Perm(len(slots)) {
				s := slots[i]
				if rng.IntN(3) == 0 {
					if err := g.conns.Reconnect(live[s], nil); err != nil {
						t.Fatalf("Reconnect(%s) error = %v", live[s], err)
					}
				} else {
					g.remove(live[s])
					delete(live, s)
					removed = append(removed, s)
				}
				checkComponents(t, g, live)
			}

			rng.Shuffle(len(removed), func(i, j int) { removed[i], removed[j] = removed[j], removed[i] })
			for _, s := range removed {
				if err := g.tryPlace(cells[s]); err != nil {
					t.Fatalf("re-insert %s: %v", cells[s], err)
				}
				live[s] = cells[s]
				checkComponents(t, g, live)
			}
			if g.manager.Len() != 1 {
				t.Errorf("Len() = %d after re-inserting everything, want 1", g.manager.Len())
			}
		})
	}
}

func TestEventLog_RecordsTopologyChanges(t *testing.T) {
	dir := t.TempDir()
	events := logging.NewEventLog(dir, "debug")
	g := newTestGrid(t, WithEventLog(events))

	a := g.place(1, locator.Pos(0, 0, 0), locator.Up)
	c := g.place(3, locator.Pos(2, 0, 0), locator.Up)
	b := g.place(2, locator.Pos(1, 0, 0), locator.Up)
	kept := graphOf(t, b)
	g.remove(b)
	events.Close()

	f, err := os.Open(filepath.Join(dir, "topology.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := logging.ReadEvents(f)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	var kinds []logging.EventKind
	for _, ev := range got {
		kinds = append(kinds, ev.Kind)
	}
	want := []logging.EventKind{
		logging.EventInsert, logging.EventInsert,
		logging.EventMerge, logging.EventInsert,
		logging.EventRemove, logging.EventSplit,
	}
	if !slices.Equal(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}

	merge := got[2]
	if merge.Graph != kept || merge.Size != 2 || len(merge.Absorbed) != 1 {
		t.Errorf("merge = %+v, want survivor %s of size 2 absorbing one graph", merge, kept)
	}
	insert := got[3]
	if insert.Cell != b.ID() || insert.Neighbors != 2 || insert.Size != 3 {
		t.Errorf("insert = %+v, want %s with 2 neighbors in a graph of 3", insert, b)
	}
	remove := got[4]
	if remove.Cell != b.ID() || remove.Locator != b.Locator().String() || remove.Graph != kept {
		t.Errorf("remove = %+v, want %s from %s", remove, b, kept)
	}
	split := got[5]
	if split.Graph != kept || len(split.Created) != 1 {
		t.Fatalf("split = %+v, want one graph carved out of %s", split, kept)
	}
	if graphOf(t, a) != kept || graphOf(t, c) != split.Created[0] {
		t.Errorf("ends in %s and %s, want %s and %s", graphOf(t, a), graphOf(t, c), kept, split.Created[0])
	}
}

func TestSnapshot_SharesUnchangedViews(t *testing.T) {
	g := newTestGrid(t)
	a := g.place(1, locator.Pos(0, 0, 0), locator.Up)
	far := g.place(9, locator.Pos(9, 0, 9), locator.Up)
	before := g.conns.Snapshot()

	g.place(2, locator.Pos(1, 0, 0), locator.Up)
	after := g.conns.Snapshot()

	oldFar, _ := before.Graph(graphOf(t, far))
	newFar, _ := after.Graph(graphOf(t, far))
	if oldFar == nil || oldFar != newFar {
		t.Error("untouched graph view was not reused")
	}
	oldA, _ := before.Graph(graphOf(t, a))
	newA, _ := after.Graph(graphOf(t, a))
	if oldA == newA || oldA.Size() != 1 || newA.Size() != 2 {
		t.Errorf("changed graph view = %d cells (was %d), want a fresh view of 2", newA.Size(), oldA.Size())
	}
	if len(oldA.Cells[0].Connections) != 0 {
		t.Error("old snapshot sees connections made after it was published")
	}
}
