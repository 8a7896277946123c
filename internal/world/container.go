package world

import (
	"context"
	"fmt"

	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/nvandessel/cellgraph/internal/locator"
	"github.com/nvandessel/cellgraph/internal/logging"
)

// Kind distinguishes container variants.
type Kind uint8

const (
	// KindBlock is a full block holding one cell that connects in the four
	// horizontal directions on its top face.
	KindBlock Kind = iota + 1
	// KindMultipart holds up to six parts, one per face; each part's cell
	// scans the four directions perpendicular to its face.
	KindMultipart
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindMultipart:
		return "multipart"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses "block" or "part"/"multipart".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "block":
		return KindBlock, nil
	case "part", "multipart":
		return KindMultipart, nil
	default:
		return 0, fmt.Errorf("unknown container kind %q (valid: block, part)", s)
	}
}

// blockFace is the face a block's single cell is located on.
const blockFace = locator.Up

// Container is a resident block or multipart container.
type Container struct {
	world  *World
	handle cells.Handle
	kind   Kind
	pos    locator.BlockPos
	parts  map[locator.Direction]*cells.Cell
}

// Handle returns the identity cells are bound to while the container is resident.
func (c *Container) Handle() cells.Handle { return c.handle }

// Kind returns whether c is a block or a multipart container.
func (c *Container) Kind() Kind { return c.kind }

// Pos returns the block coordinate c occupies.
func (c *Container) Pos() locator.BlockPos { return c.pos }

// Cells returns the container's cells ordered by face.
func (c *Container) Cells() []*cells.Cell {
	out := make([]*cells.Cell, 0, len(c.parts))
	for _, d := range locator.Directions {
		if cell, ok := c.parts[d]; ok {
			out = append(out, cell)
		}
	}
	return out
}

// Cell returns the cell on face. Blocks only have a cell on their top face.
func (c *Container) Cell(face locator.Direction) (*cells.Cell, bool) {
	cell, ok := c.parts[face]
	return cell, ok
}

// NeighborScan implements cells.Container.
func (c *Container) NeighborScan(cell *cells.Cell) ([]cells.Candidate, error) {
	switch c.kind {
	case KindBlock:
		return c.world.scanner.Scan(c, cell, locator.Horizontals)
	case KindMultipart:
		face, err := cell.Locator().RequireFace()
		if err != nil {
			return nil, err
		}
		return c.world.scanner.Scan(c, cell, face.Perpendicular())
	default:
		return nil, fmt.Errorf("scan in %s container", c.kind)
	}
}

// OnCellConnected traces the new edge and marks the chunk dirty.
func (c *Container) OnCellConnected(local, remote *cells.Cell) {
	c.world.logger.Log(context.Background(), logging.LevelTrace, "cell connected",
		"local", local.ID(), "remote", remote.ID(), "pos", c.pos)
	c.markDirty()
}

// OnCellDisconnected traces the dropped edge and marks the chunk dirty.
func (c *Container) OnCellDisconnected(local, remote *cells.Cell) {
	c.world.logger.Log(context.Background(), logging.LevelTrace, "cell disconnected",
		"local", local.ID(), "remote", remote.ID(), "pos", c.pos)
	c.markDirty()
}

// OnTopologyChanged marks the chunk dirty so the cells' graph ids are saved.
func (c *Container) OnTopologyChanged() { c.markDirty() }

func (c *Container) markDirty() {
	if ch, ok := c.world.chunks[c.world.chunkOf(c.pos)]; ok {
		ch.dirty = true
	}
}
