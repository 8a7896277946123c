package cells

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nvandessel/cellgraph/internal/locator"
)

// Candidate is a neighbor found by a scan together with the adjacency mode
// that would connect it.
type Candidate struct {
	Cell      *Cell
	Mode      locator.Mode
	Direction locator.Direction
}

// View is the read-only part of the world a scan needs.
type View interface {
	// ContainerAt returns the container at pos, if any is resident.
	ContainerAt(pos locator.BlockPos) (Container, bool)
	// Occupied reports whether anything (a solid block or a container) is at pos.
	Occupied(pos locator.BlockPos) bool
}

// Scanner turns spatial adjacency into connection candidates. It never
// mutates anything.
type Scanner struct {
	View View
	// AllowDiagonalWrap permits wrapped connections even when the block
	// next to the corner is occupied.
	AllowDiagonalWrap bool
}

// Scan finds candidates for cell, owned by self, in each of dirs.
//
// Planar candidates sit on the same face of the adjacent coordinate. Inner
// candidates sit on the face of self that looks back along the direction.
// Wrapped candidates sit around the corner of the substrate block and are
// only considered when no inner candidate exists in that direction. Every
// candidate is cross-checked with locator.Classify; mismatches are dropped.
func (s Scanner) Scan(self Container, cell *Cell, dirs []locator.Direction) ([]Candidate, error) {
	pos, err := cell.loc.RequireBlock()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", cell, err)
	}
	face, err := cell.loc.RequireFace()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", cell, err)
	}

	var out []Candidate
	seen := make(map[uuid.UUID]struct{})
	add := func(remote *Cell, mode locator.Mode, dir locator.Direction) (bool, error) {
		if got, gotDir := locator.Classify(cell.loc, remote.loc); got != mode || gotDir != dir {
			return false, nil
		}
		if !Accepted(cell, remote, mode) {
			return false, nil
		}
		if _, dup := seen[remote.id]; dup {
			return false, fmt.Errorf("%w: %s reached twice from %s", ErrDuplicateCandidate, remote, cell)
		}
		seen[remote.id] = struct{}{}
		out = append(out, Candidate{Cell: remote, Mode: mode, Direction: dir})
		return true, nil
	}

	for _, dir := range dirs {
		if cell.modes.Has(locator.Planar) {
			target := pos.Offset(dir)
			if remote, ok := s.View.ContainerAt(target); ok {
				for _, rc := range remote.Cells() {
					if rf, ok := rc.loc.Face(); !ok || rf != face {
						continue
					}
					if _, err := add(rc, locator.Planar, dir); err != nil {
						return nil, err
					}
				}
			}
		}

		inner := false
		if cell.modes.Has(locator.Inner) && self != nil {
			for _, oc := range self.Cells() {
				if oc == cell {
					continue
				}
				if of, ok := oc.loc.Face(); !ok || of != dir.Opposite() {
					continue
				}
				found, err := add(oc, locator.Inner, dir)
				if err != nil {
					return nil, err
				}
				inner = inner || found
			}
		}

		if inner || !cell.modes.Has(locator.Wrapped) {
			continue
		}
		corner := pos.Offset(dir)
		if !s.AllowDiagonalWrap && s.View.Occupied(corner) {
			continue
		}
		remote, ok := s.View.ContainerAt(corner.Offset(face.Opposite()))
		if !ok {
			continue
		}
		for _, rc := range remote.Cells() {
			if rf, ok := rc.loc.Face(); !ok || rf != dir {
				continue
			}
			if _, err := add(rc, locator.Wrapped, dir); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}
