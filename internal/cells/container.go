package cells

// Container owns cells and knows their surroundings. Blocks and multipart
// attachments both implement it.
//
// Callbacks are invoked by Connections during a mutation. They must not call
// back into Connections; doing so fails with ErrConcurrentMutation.
type Container interface {
	Handle() Handle
	Cells() []*Cell
	NeighborScan(cell *Cell) ([]Candidate, error)
	OnCellConnected(local, remote *Cell)
	OnCellDisconnected(local, remote *Cell)
	OnTopologyChanged()
}

// Resolver resolves container handles held by cells.
type Resolver interface {
	Container(h Handle) (Container, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(h Handle) (Container, bool)

// Container implements Resolver.
func (f ResolverFunc) Container(h Handle) (Container, bool) { return f(h) }
