package change

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bdew/MCMultiPart/internal/sim/encoding"
)

// MaxPayloadLen is the wire ceiling set by the 24-bit length prefix.
const MaxPayloadLen = encoding.MaxUint24

// fixed header: kind + uuid halves + tag length + position
const headerLen = 4 + 16 + 2 + 12

// Encode serializes rec in wire order:
//
//	int32 kind | int64 id high | int64 id low | uint16+utf8 type |
//	int32 x | int32 y | int32 z | [uint24 len | payload]
//
// The payload section is present only for kinds that carry one.
func Encode(rec Record) ([]byte, error) {
	return Append(make([]byte, 0, headerLen+len(rec.Type)+3+len(rec.Payload)), rec)
}

// Append encodes rec onto dst. On error dst is returned unchanged.
func Append(dst []byte, rec Record) ([]byte, error) {
	if !rec.Kind.Valid() {
		return dst, fmt.Errorf("%w: %s", ErrUnknownKind, rec.Kind)
	}
	if rec.Kind.HasPayload() {
		if len(rec.Payload) > MaxPayloadLen {
			return dst, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(rec.Payload))
		}
	} else if len(rec.Payload) != 0 {
		return dst, fmt.Errorf("%w: %s carries %d payload bytes", ErrMalformedRecord, rec.Kind, len(rec.Payload))
	}

	w := encoding.WrapWriter(dst)
	w.WriteInt32(rec.Kind.Ordinal())
	hi, lo := splitID(rec.ID)
	w.WriteInt64(hi)
	w.WriteInt64(lo)
	if err := w.WriteString(rec.Type); err != nil {
		return dst, fmt.Errorf("%w: %v", ErrBadTypeTag, err)
	}
	w.WriteInt32(rec.Pos.X)
	w.WriteInt32(rec.Pos.Y)
	w.WriteInt32(rec.Pos.Z)
	if rec.Kind.HasPayload() {
		if err := w.WriteUint24(len(rec.Payload)); err != nil {
			return dst, fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
		}
		w.WriteRaw(rec.Payload)
	}
	return w.Bytes(), nil
}

// Decode parses exactly one record from b.
func Decode(b []byte) (Record, error) {
	var rec Record
	r := encoding.NewReader(b)

	ord, err := r.ReadInt32()
	if err != nil {
		return Record{}, malformed("kind", err)
	}
	kind, err := KindFromOrdinal(ord)
	if err != nil {
		return Record{}, err
	}

	hi, err := r.ReadInt64()
	if err != nil {
		return Record{}, malformed("id", err)
	}
	lo, err := r.ReadInt64()
	if err != nil {
		return Record{}, malformed("id", err)
	}
	tag, err := r.ReadString()
	if err != nil {
		return Record{}, malformed("type", err)
	}
	var pos BlockPos
	for _, p := range []*int32{&pos.X, &pos.Y, &pos.Z} {
		if *p, err = r.ReadInt32(); err != nil {
			return Record{}, malformed("pos", err)
		}
	}

	rec.Kind = kind
	rec.ID = joinID(hi, lo)
	rec.Type = tag
	rec.Pos = pos

	if kind.HasPayload() {
		n, err := r.ReadUint24()
		if err != nil {
			return Record{}, malformed("payload length", err)
		}
		if rec.Payload, err = r.ReadBytes(n); err != nil {
			return Record{}, malformed("payload", err)
		}
	}
	if r.Remaining() != 0 {
		return Record{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedRecord, r.Remaining())
	}
	return rec, nil
}

func malformed(field string, err error) error {
	if errors.Is(err, encoding.ErrBadUTF8) {
		return fmt.Errorf("%w: %s: %v", ErrMalformedRecord, field, err)
	}
	return fmt.Errorf("%w: truncated %s: %v", ErrMalformedRecord, field, err)
}

func splitID(id uuid.UUID) (hi, lo int64) {
	for i := 0; i < 8; i++ {
		hi = hi<<8 | int64(id[i])
		lo = lo<<8 | int64(id[8+i])
	}
	return hi, lo
}

func joinID(hi, lo int64) uuid.UUID {
	var id uuid.UUID
	for i := 7; i >= 0; i-- {
		id[i] = byte(hi)
		id[8+i] = byte(lo)
		hi >>= 8
		lo >>= 8
	}
	return id
}
