// Package locator identifies where a cell sits in the world: a grid
// coordinate, the face of that coordinate the cell is attached to, and an
// optional horizontal orientation.
package locator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingComponent is returned when a required locator component is absent.
var ErrMissingComponent = errors.New("missing locator component")

// ErrDuplicateComponent is returned when a locator is built with the same kind twice.
var ErrDuplicateComponent = errors.New("duplicate locator component")

// Kind names one component of a Locator.
type Kind uint8

const (
	KindBlock Kind = iota
	KindFace
	KindFacing
	kindCount
)

var kindNames = [...]string{"block", "face", "facing"}

func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Component is a single (kind, value) pair used to build a Locator.
type Component struct {
	kind Kind
	pos  BlockPos
	dir  Direction
}

// Kind returns the component kind.
func (c Component) Kind() Kind { return c.kind }

// Block is a grid coordinate component.
func Block(pos BlockPos) Component { return Component{kind: KindBlock, pos: pos} }

// Face is the attachment face component.
func Face(d Direction) Component { return Component{kind: KindFace, dir: d} }

// Facing is the orientation component.
func Facing(d Direction) Component { return Component{kind: KindFacing, dir: d} }

// Locator is an immutable composite key. Absent components hold zero values,
// so two locators compare equal with == exactly when they carry the same
// kinds with equal values. Locators are usable as map keys.
type Locator struct {
	mask   uint8
	pos    BlockPos
	face   Direction
	facing Direction
}

// New builds a locator from components. Each kind may appear at most once.
func New(components ...Component) (Locator, error) {
	var l Locator
	for _, c := range components {
		if c.kind >= kindCount {
			return Locator{}, fmt.Errorf("unknown locator kind %d", c.kind)
		}
		if l.Has(c.kind) {
			return Locator{}, fmt.Errorf("%w: %s", ErrDuplicateComponent, c.kind)
		}
		if c.kind != KindBlock && !c.dir.Valid() {
			return Locator{}, fmt.Errorf("invalid %s direction %d", c.kind, c.dir)
		}
		l.mask |= 1 << c.kind
		switch c.kind {
		case KindBlock:
			l.pos = c.pos
		case KindFace:
			l.face = c.dir
		case KindFacing:
			l.facing = c.dir
		}
	}
	return l, nil
}

// MustNew is New for statically known components. It panics on error.
func MustNew(components ...Component) Locator {
	l, err := New(components...)
	if err != nil {
		panic(err)
	}
	return l
}

// At returns the locator of a cell on face of the block at pos.
func At(pos BlockPos, face Direction) Locator {
	return MustNew(Block(pos), Face(face))
}

// Has reports whether the component kind is present.
func (l Locator) Has(k Kind) bool {
	return k < kindCount && l.mask&(1<<k) != 0
}

// Get returns the value of a component: a BlockPos for KindBlock and a
// Direction otherwise.
func (l Locator) Get(k Kind) (any, bool) {
	if !l.Has(k) {
		return nil, false
	}
	switch k {
	case KindBlock:
		return l.pos, true
	case KindFace:
		return l.face, true
	default:
		return l.facing, true
	}
}

// Require is Get that fails with ErrMissingComponent.
func (l Locator) Require(k Kind) (any, error) {
	v, ok := l.Get(k)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrMissingComponent, k, l)
	}
	return v, nil
}

// Block returns the grid coordinate.
func (l Locator) Block() (BlockPos, bool) {
	return l.pos, l.Has(KindBlock)
}

// Face returns the attachment face.
func (l Locator) Face() (Direction, bool) {
	return l.face, l.Has(KindFace)
}

// Facing returns the orientation.
func (l Locator) Facing() (Direction, bool) {
	return l.facing, l.Has(KindFacing)
}

// RequireBlock returns the grid coordinate or ErrMissingComponent.
func (l Locator) RequireBlock() (BlockPos, error) {
	if !l.Has(KindBlock) {
		return BlockPos{}, fmt.Errorf("%w: %s in %s", ErrMissingComponent, KindBlock, l)
	}
	return l.pos, nil
}

// RequireFace returns the attachment face or ErrMissingComponent.
func (l Locator) RequireFace() (Direction, error) {
	if !l.Has(KindFace) {
		return 0, fmt.Errorf("%w: %s in %s", ErrMissingComponent, KindFace, l)
	}
	return l.face, nil
}

// Equal reports structural equality.
func (l Locator) Equal(o Locator) bool {
	return l == o
}

func (l Locator) String() string {
	parts := make([]string, 0, kindCount)
	if l.Has(KindBlock) {
		parts = append(parts, "block="+l.pos.String())
	}
	if l.Has(KindFace) {
		parts = append(parts, "face="+l.face.String())
	}
	if l.Has(KindFacing) {
		parts = append(parts, "facing="+l.facing.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}
