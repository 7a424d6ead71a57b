package change

import "errors"

var (
	// ErrMalformedRecord is a structural decode failure: truncated buffer,
	// payload length past the end, bad tag bytes or trailing garbage. The
	// transport should drop the peer that sent it.
	ErrMalformedRecord = errors.New("malformed change record")

	// ErrUnknownKind is a kind discriminant outside the known range.
	ErrUnknownKind = errors.New("unknown change kind")

	ErrPayloadTooLarge = errors.New("change payload exceeds 24-bit length")
	ErrBadTypeTag      = errors.New("bad part type tag")
)
