package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrMalformedRecord,
		ErrUnknownKind,
		ErrPayloadTooLarge,
		ErrUnknownType,
		ErrBadPayload,
		ErrDuplicatePart,
		ErrIllegalState,
		ErrNotFound,
		ErrWorldBusy,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: truncated kind", change.ErrMalformedRecord), ErrMalformedRecord},
		{fmt.Errorf("%w: ordinal 9", change.ErrUnknownKind), ErrUnknownKind},
		{fmt.Errorf("%w: \"lever\"", parts.ErrUnknownType), ErrUnknownType},
		{fmt.Errorf("apply: %w", parts.ErrIllegalState), ErrIllegalState},
		{errors.New("boom"), ErrInternal},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%v)=%q want %q", tc.err, got, tc.want)
		}
		if !IsKnownCode(CodeOf(tc.err)) {
			t.Fatalf("CodeOf(%v) produced unknown code", tc.err)
		}
	}
}
