package locator

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// wireLocator is the packed form of a Locator.
type wireLocator struct {
	Mask   uint8 `msgpack:"m"`
	X      int   `msgpack:"x"`
	Y      int   `msgpack:"y"`
	Z      int   `msgpack:"z"`
	Face   uint8 `msgpack:"f"`
	Facing uint8 `msgpack:"o"`
}

// MarshalBinary packs the locator with msgpack.
func (l Locator) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal(wireLocator{
		Mask:   l.mask,
		X:      l.pos.X,
		Y:      l.pos.Y,
		Z:      l.pos.Z,
		Face:   uint8(l.face),
		Facing: uint8(l.facing),
	})
}

// UnmarshalBinary restores a locator packed by MarshalBinary.
func (l *Locator) UnmarshalBinary(data []byte) error {
	var w wireLocator
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode locator: %w", err)
	}
	if w.Mask>>kindCount != 0 {
		return fmt.Errorf("decode locator: invalid component mask %#x", w.Mask)
	}

	var components []Component
	if w.Mask&(1<<KindBlock) != 0 {
		components = append(components, Block(Pos(w.X, w.Y, w.Z)))
	}
	if w.Mask&(1<<KindFace) != 0 {
		components = append(components, Face(Direction(w.Face)))
	}
	if w.Mask&(1<<KindFacing) != 0 {
		components = append(components, Facing(Direction(w.Facing)))
	}

	decoded, err := New(components...)
	if err != nil {
		return fmt.Errorf("decode locator: %w", err)
	}
	*l = decoded
	return nil
}
