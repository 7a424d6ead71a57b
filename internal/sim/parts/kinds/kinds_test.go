package kinds

import (
	"errors"
	"strings"
	"testing"

	"github.com/bdew/MCMultiPart/internal/sim/parts"
)

func mustPayload(t *testing.T, p parts.Part) []byte {
	t.Helper()
	b, err := parts.UpdatePayload(p)
	if err != nil {
		t.Fatalf("UpdatePayload(%s): %v", p.Type(), err)
	}
	return b
}

func TestRegisterDefaults(t *testing.T) {
	reg := parts.NewRegistry()
	if err := RegisterDefaults(reg, nil); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	got := strings.Join(reg.Types(), ",")
	if got != "marker,sign,slab,torch" {
		t.Fatalf("types=%s", got)
	}

	reg = parts.NewRegistry()
	if err := RegisterDefaults(reg, []string{TypeTorch}); err != nil {
		t.Fatalf("RegisterDefaults(torch): %v", err)
	}
	if reg.Known(TypeSign) {
		t.Fatalf("sign registered although not enabled")
	}
	if err := RegisterDefaults(parts.NewRegistry(), []string{"lever"}); err == nil {
		t.Fatalf("expected error for unknown built-in")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	reg := parts.NewRegistry()
	if err := RegisterDefaults(reg, nil); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	sign := &Sign{}
	sign.SetText("hello\nworld")
	cases := []parts.Part{
		&Torch{Facing: FaceNorth, Lit: true},
		&Slab{Top: true, Material: "oak"},
		sign,
		&Marker{Label: "gate", Strength: -7},
	}
	for _, in := range cases {
		raw := mustPayload(t, in)
		out, err := reg.CreatePart(in.Type(), raw)
		if err != nil {
			t.Fatalf("CreatePart(%s): %v", in.Type(), err)
		}
		if string(mustPayload(t, out)) != string(raw) {
			t.Fatalf("%s state changed across payload round trip", in.Type())
		}
	}
}

func TestSignClipsLongLines(t *testing.T) {
	s := &Sign{}
	s.SetText(strings.Repeat("é", 60) + "\nb\nc\nd\ne")
	if len(s.Lines[0]) > SignLineMax {
		t.Fatalf("line 0 len=%d", len(s.Lines[0]))
	}
	if s.Lines[0] != strings.Repeat("é", 45) {
		t.Fatalf("line 0 clipped mid-rune: %q", s.Lines[0])
	}
	if s.Lines[3] != "d\ne" {
		t.Fatalf("line 3=%q", s.Lines[3])
	}
}

func TestTorchRejectsBadFacing(t *testing.T) {
	reg := parts.NewRegistry()
	if err := RegisterDefaults(reg, []string{TypeTorch}); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	if _, err := reg.CreatePart(TypeTorch, []byte{9, 0}); err == nil {
		t.Fatalf("expected facing out of range")
	}
	if _, err := reg.CreatePart(TypeTorch, []byte{1}); err == nil {
		t.Fatalf("expected short payload error")
	}
}

func TestWriteUpdateRejectsUnencodableState(t *testing.T) {
	cases := []parts.Part{
		&Marker{Label: "\xff\xfe", Strength: 7},
		&Slab{Material: strings.Repeat("x", 1<<16)},
		&Sign{Lines: [SignLines]string{strings.Repeat("a", SignLineMax+1)}},
		&Torch{Facing: FaceEast + 1},
	}
	for _, p := range cases {
		b, err := parts.UpdatePayload(p)
		if !errors.Is(err, parts.ErrBadPayload) {
			t.Fatalf("%s: err = %v, want ErrBadPayload", p.Type(), err)
		}
		if b != nil {
			t.Fatalf("%s: partial payload %x returned", p.Type(), b)
		}
	}
}
