package cells

import (
	"fmt"
	"sync/atomic"
)

// guard enforces the single-writer model: at most one structural mutation
// runs at a time per world.
type guard struct {
	busy atomic.Bool
	op   atomic.Value
}

func (g *guard) enter(op string) error {
	if !g.busy.CompareAndSwap(false, true) {
		running, _ := g.op.Load().(string)
		return fmt.Errorf("%w: %s while %s is running", ErrConcurrentMutation, op, running)
	}
	g.op.Store(op)
	return nil
}

func (g *guard) exit() {
	g.busy.Store(false)
}
