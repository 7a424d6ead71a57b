package protocol

import (
	"errors"

	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrMalformedRecord = "E_MALFORMED_RECORD"
	ErrUnknownKind     = "E_UNKNOWN_KIND"
	ErrPayloadTooLarge = "E_PAYLOAD_TOO_LARGE"

	// Part registry / apply layer.
	ErrUnknownType   = "E_UNKNOWN_TYPE"
	ErrBadPayload    = "E_BAD_PAYLOAD"
	ErrDuplicatePart = "E_DUPLICATE_PART"
	ErrIllegalState  = "E_ILLEGAL_STATE"
	ErrNotFound      = "E_NOT_FOUND"

	// World routing/state.
	ErrWorldBusy = "E_WORLD_BUSY"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrMalformedRecord: {},
	ErrUnknownKind:     {},
	ErrPayloadTooLarge: {},
	ErrUnknownType:     {},
	ErrBadPayload:      {},
	ErrDuplicatePart:   {},
	ErrIllegalState:    {},
	ErrNotFound:        {},
	ErrWorldBusy:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

var codeTable = []struct {
	err  error
	code string
}{
	{change.ErrMalformedRecord, ErrMalformedRecord},
	{change.ErrUnknownKind, ErrUnknownKind},
	{change.ErrPayloadTooLarge, ErrPayloadTooLarge},
	{change.ErrBadTypeTag, ErrProtoBadRequest},
	{parts.ErrUnknownType, ErrUnknownType},
	{parts.ErrBadPayload, ErrBadPayload},
	{parts.ErrDuplicatePart, ErrDuplicatePart},
	{parts.ErrIllegalState, ErrIllegalState},
}

// CodeOf maps an error from the change/parts layers to its stable code.
// nil maps to "" and anything unrecognized to E_INTERNAL.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ErrInternal
}
