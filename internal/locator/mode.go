package locator

import (
	"fmt"
	"strings"
)

// Mode classifies how two cells are geometrically connected.
type Mode uint8

const (
	// Unknown is an adjacency that does not resolve to a consistent direction.
	Unknown Mode = iota
	// Planar connects cells on the same face of adjacent coordinates.
	Planar
	// Inner connects cells on perpendicular faces of the same coordinate.
	Inner
	// Wrapped connects cells on perpendicular faces around the corner of a
	// shared substrate block.
	Wrapped
)

var modeNames = [...]string{"unknown", "planar", "inner", "wrapped"}

func (m Mode) String() string {
	if int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
	return modeNames[m]
}

// ParseMode parses a mode name. "unknown" is not accepted.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if i > 0 && n == name {
			return Mode(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown adjacency mode %q", s)
}

// ModeMask is a set of modes.
type ModeMask uint8

// AllModes permits planar, inner and wrapped adjacency.
const AllModes = ModeMask(1<<Planar | 1<<Inner | 1<<Wrapped)

// Modes builds a mask from modes.
func Modes(modes ...Mode) ModeMask {
	var m ModeMask
	for _, mode := range modes {
		if mode != Unknown {
			m |= 1 << mode
		}
	}
	return m
}

// Has reports whether mode is in the mask.
func (m ModeMask) Has(mode Mode) bool {
	return mode != Unknown && m&(1<<mode) != 0
}

func (m ModeMask) String() string {
	var names []string
	for _, mode := range []Mode{Planar, Inner, Wrapped} {
		if m.Has(mode) {
			names = append(names, mode.String())
		}
	}
	return strings.Join(names, "|")
}

// Classify determines the adjacency mode from actual to remote and the
// direction, in world space, in which remote lies as seen from actual.
// Both locators need a block and a face; otherwise the result is Unknown.
func Classify(actual, remote Locator) (Mode, Direction) {
	aPos, ok1 := actual.Block()
	rPos, ok2 := remote.Block()
	aFace, ok3 := actual.Face()
	rFace, ok4 := remote.Face()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Unknown, 0
	}

	if aPos == rPos {
		if aFace == rFace || aFace == rFace.Opposite() {
			return Unknown, aFace
		}
		return Inner, rFace.Opposite()
	}

	if aFace == rFace {
		dir, ok := aPos.DirectionTo(rPos)
		if !ok {
			return Unknown, aFace
		}
		return Planar, dir
	}

	dir, ok := DirectionByNormal(rPos.Add(aFace.Step()).Sub(aPos))
	if !ok || dir != rFace || !dir.IsPerpendicular(aFace) {
		return Unknown, aFace
	}
	return Wrapped, dir
}
