// Package change implements the binary change record exchanged between the
// authoritative world and its observers: one add/remove/update of a part at a
// block position, one record per message.
package change

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind is the mutation a record carries. The zero value is never sent.
type Kind uint8

const (
	KindUnset Kind = iota
	KindAdd
	KindRemove
	KindUpdate
	KindUpdateRerender
)

var kindNames = [...]string{
	KindUnset:          "UNSET",
	KindAdd:            "ADD",
	KindRemove:         "REMOVE",
	KindUpdate:         "UPDATE",
	KindUpdateRerender: "UPDATE_RERENDER",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

func (k Kind) Valid() bool { return k >= KindAdd && k <= KindUpdateRerender }

// HasPayload reports whether records of this kind carry a part payload.
func (k Kind) HasPayload() bool {
	return k == KindAdd || k == KindUpdate || k == KindUpdateRerender
}

// Ordinal is the wire discriminant (0=ADD .. 3=UPDATE_RERENDER).
func (k Kind) Ordinal() int32 { return int32(k) - 1 }

func KindFromOrdinal(o int32) (Kind, error) {
	if o < 0 || o > KindUpdateRerender.Ordinal() {
		return KindUnset, fmt.Errorf("%w: ordinal %d", ErrUnknownKind, o)
	}
	return Kind(o + 1), nil
}

func ParseKind(s string) (Kind, bool) {
	for k := KindAdd; k <= KindUpdateRerender; k++ {
		if kindNames[k] == s {
			return k, true
		}
	}
	return KindUnset, false
}

// BlockPos names a block-position container.
type BlockPos struct {
	X, Y, Z int32
}

func (p BlockPos) String() string { return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z) }

// ChunkX and ChunkZ return the 16x16 column the position belongs to.
func (p BlockPos) ChunkX() int32 { return p.X >> 4 }
func (p BlockPos) ChunkZ() int32 { return p.Z >> 4 }

func (p BlockPos) Less(o BlockPos) bool {
	if p.X != o.X {
		return p.X < o.X
	}
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.Z < o.Z
}

// Record is one mutation of one part. Payload is set iff Kind.HasPayload().
type Record struct {
	Kind    Kind
	ID      uuid.UUID
	Type    string
	Pos     BlockPos
	Payload []byte
}

func (r Record) String() string {
	if r.Kind.HasPayload() {
		return fmt.Sprintf("%s %s %s@%s (%d bytes)", r.Kind, r.ID, r.Type, r.Pos, len(r.Payload))
	}
	return fmt.Sprintf("%s %s %s@%s", r.Kind, r.ID, r.Type, r.Pos)
}
