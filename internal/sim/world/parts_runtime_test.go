package world

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bdew/MCMultiPart/internal/logging"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
	"github.com/bdew/MCMultiPart/internal/sim/parts/kinds"
)

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	reg := parts.NewRegistry()
	if err := kinds.RegisterDefaults(reg, nil); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	if cfg.ID == "" {
		cfg.ID = "world_test"
	}
	if cfg.TickRateHz == 0 {
		cfg.TickRateHz = 50
	}
	if cfg.DefaultChunkRadius == 0 {
		cfg.DefaultChunkRadius = 1
	}
	w, err := New(cfg, reg, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func runWorld(t *testing.T, w *World) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

type memLogger struct {
	mu      sync.Mutex
	entries []ChangeLogEntry
}

func (m *memLogger) WriteChange(e ChangeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

var at = change.BlockPos{X: 5, Y: 64, Z: -2}

func TestWorld_AddUpdateRemove(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	jl := &memLogger{}
	w.SetChangeLogger(jl)
	ctx := runWorld(t, w)

	torch := &kinds.Torch{Facing: kinds.FaceUp}
	id, err := w.AddPart(ctx, at, torch)
	if err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	if id == uuid.Nil {
		t.Fatalf("AddPart returned nil id")
	}

	if err := w.UpdatePart(ctx, at, id, []byte{byte(kinds.FaceNorth), 1}, true); err != nil {
		t.Fatalf("UpdatePart: %v", err)
	}
	got, err := w.PartsAt(ctx, at)
	if err != nil {
		t.Fatalf("PartsAt: %v", err)
	}
	if len(got) != 1 || got[0].ID != id || got[0].Type != kinds.TypeTorch {
		t.Fatalf("PartsAt = %+v", got)
	}
	if want := []byte{byte(kinds.FaceNorth), 1}; string(got[0].Payload) != string(want) {
		t.Fatalf("payload = %v, want %v", got[0].Payload, want)
	}

	if err := w.RemovePart(ctx, at, id); err != nil {
		t.Fatalf("RemovePart: %v", err)
	}
	if err := w.RemovePart(ctx, at, id); !errors.Is(err, ErrPartNotFound) {
		t.Fatalf("second RemovePart err = %v, want ErrPartNotFound", err)
	}
	if err := w.UpdatePart(ctx, at, id, []byte{0, 0}, false); !errors.Is(err, ErrPartNotFound) {
		t.Fatalf("UpdatePart after remove err = %v, want ErrPartNotFound", err)
	}

	jl.mu.Lock()
	defer jl.mu.Unlock()
	if len(jl.entries) != 3 {
		t.Fatalf("journal entries = %d, want 3", len(jl.entries))
	}
	wantKinds := []string{"ADD", "UPDATE_RERENDER", "REMOVE"}
	for i, e := range jl.entries {
		if e.Kind != wantKinds[i] || e.Seq != uint64(i+1) || e.PartID != id.String() || e.Session != w.Session() {
			t.Fatalf("entry %d = %+v", i, e)
		}
		rec, err := change.Decode(e.Record)
		if err != nil {
			t.Fatalf("entry %d decode: %v", i, err)
		}
		if rec.ID != id || rec.Pos != at {
			t.Fatalf("entry %d record = %s", i, rec)
		}
	}
}

func TestWorld_RejectsBadMutations(t *testing.T) {
	w := newTestWorld(t, WorldConfig{MaxPayload: 8})
	ctx := runWorld(t, w)

	sign := &kinds.Sign{}
	sign.SetText("a line that is much longer than eight bytes")
	if _, err := w.AddPart(ctx, at, sign); !errors.Is(err, change.ErrPayloadTooLarge) {
		t.Fatalf("oversized add err = %v, want ErrPayloadTooLarge", err)
	}

	id, err := w.AddPart(ctx, at, &kinds.Torch{})
	if err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	if err := w.UpdatePart(ctx, at, id, []byte{99, 0}, false); !errors.Is(err, parts.ErrBadPayload) {
		t.Fatalf("bad facing err = %v, want ErrBadPayload", err)
	}
	if _, err := w.AddPart(ctx, at, nil); !errors.Is(err, parts.ErrUnknownType) {
		t.Fatalf("nil part err = %v, want ErrUnknownType", err)
	}
	if err := w.RemovePart(ctx, change.BlockPos{}, id); !errors.Is(err, ErrPartNotFound) {
		t.Fatalf("remove at wrong pos err = %v, want ErrPartNotFound", err)
	}
}

func TestWorld_RejectedMutationLeavesStateUntouched(t *testing.T) {
	w := newTestWorld(t, WorldConfig{MaxPayload: 8})
	jl := &memLogger{}
	w.SetChangeLogger(jl)
	ctx := runWorld(t, w)

	id, err := w.AddPart(ctx, at, &kinds.Marker{Label: "a", Strength: 3})
	if err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	before, err := w.PartsAt(ctx, at)
	if err != nil || len(before) != 1 {
		t.Fatalf("PartsAt = %+v, %v", before, err)
	}

	cases := []struct {
		name string
		fn   func(parts.Part) error
		want error
	}{
		{"oversized label", func(p parts.Part) error {
			p.(*kinds.Marker).Label = "abcdefghij"
			return nil
		}, change.ErrPayloadTooLarge},
		{"unencodable label", func(p parts.Part) error {
			p.(*kinds.Marker).Label = "\xff\xfe"
			return nil
		}, parts.ErrBadPayload},
		{"failing mutation", func(p parts.Part) error {
			m := p.(*kinds.Marker)
			m.Strength = 99
			return parts.ErrIllegalState
		}, parts.ErrIllegalState},
	}
	for _, tc := range cases {
		if err := w.MutatePart(ctx, at, id, tc.fn, false); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
		got, err := w.PartsAt(ctx, at)
		if err != nil {
			t.Fatalf("%s: PartsAt: %v", tc.name, err)
		}
		if len(got) != 1 || string(got[0].Payload) != string(before[0].Payload) {
			t.Fatalf("%s: payload = %v, want %v", tc.name, got, before[0].Payload)
		}
	}

	jl.mu.Lock()
	defer jl.mu.Unlock()
	if len(jl.entries) != 1 || jl.entries[0].Kind != "ADD" {
		t.Fatalf("journal = %+v, want only the add", jl.entries)
	}
}

func TestWorld_RejectsUnencodableAndReattachedParts(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	jl := &memLogger{}
	w.SetChangeLogger(jl)
	ctx := runWorld(t, w)

	if _, err := w.AddPart(ctx, at, &kinds.Marker{Label: "\xff\xfe"}); !errors.Is(err, parts.ErrBadPayload) {
		t.Fatalf("bad label add err = %v, want ErrBadPayload", err)
	}

	torch := &kinds.Torch{Facing: kinds.FaceUp}
	if _, err := w.AddPart(ctx, at, torch); err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	other := change.BlockPos{X: at.X + 1, Y: at.Y, Z: at.Z}
	if _, err := w.AddPart(ctx, other, torch); !errors.Is(err, parts.ErrIllegalState) {
		t.Fatalf("reattach err = %v, want ErrIllegalState", err)
	}
	if got, err := w.PartsAt(ctx, other); err != nil || len(got) != 0 {
		t.Fatalf("PartsAt(other) = %+v, %v", got, err)
	}

	jl.mu.Lock()
	defer jl.mu.Unlock()
	if len(jl.entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(jl.entries))
	}
}

func TestWorld_StoppedRejectsCalls(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	w.Stop()
	<-done
	defer cancel()

	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	if _, err := w.AddPart(callCtx, at, &kinds.Torch{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("AddPart after stop err = %v, want ErrStopped", err)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	reg := parts.NewRegistry()
	if _, err := New(WorldConfig{TickRateHz: 20}, reg, nil); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if _, err := New(WorldConfig{ID: "w", TickRateHz: 0}, reg, nil); err == nil {
		t.Fatalf("expected error for zero tick rate")
	}
	if _, err := New(WorldConfig{ID: "w", TickRateHz: 20}, nil, nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}
