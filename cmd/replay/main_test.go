package main

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bdew/MCMultiPart/internal/logging"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
	"github.com/bdew/MCMultiPart/internal/sim/parts/kinds"
	"github.com/bdew/MCMultiPart/internal/sim/replica"
	"github.com/bdew/MCMultiPart/internal/sim/world"
)

var at = change.BlockPos{X: 1, Y: 70, Z: 1}

func newReplayer(t *testing.T, session string, toSeq uint64) *replayer {
	t.Helper()
	reg := parts.NewRegistry()
	if err := kinds.RegisterDefaults(reg, nil); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	return &replayer{
		session: session,
		toSeq:   toSeq,
		newReplica: func() (*replica.Replica, error) {
			return replica.New(replica.Config{}, reg, logging.Discard())
		},
	}
}

func torchEntry(t *testing.T, session string, seq uint64, kind change.Kind, id uuid.UUID) world.ChangeLogEntry {
	t.Helper()
	rec := change.Record{Kind: kind, ID: id, Type: kinds.TypeTorch, Pos: at}
	if kind.HasPayload() {
		rec.Payload = []byte{byte(kinds.FaceUp), 0}
	}
	raw, err := change.Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return world.ChangeLogEntry{Session: session, Seq: seq, Kind: kind.String(), PartID: id.String(), Type: rec.Type, Record: raw}
}

func TestReplayer_ResetsPerSession(t *testing.T) {
	r := newReplayer(t, "", 0)
	a, b := uuid.New(), uuid.New()
	for _, e := range []world.ChangeLogEntry{
		torchEntry(t, "s1", 1, change.KindAdd, a),
		torchEntry(t, "s1", 2, change.KindUpdate, a),
		torchEntry(t, "s2", 1, change.KindAdd, b),
	} {
		if err := r.apply(e); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if r.current != "s2" || r.sessions != 2 || r.applied != 1 || r.lastSeq != 1 {
		t.Fatalf("replayer = %+v", r)
	}
	if n := r.rep.Store().Len(); n != 1 {
		t.Fatalf("parts = %d, want 1", n)
	}
}

func TestReplayer_SelectsSessionAndStops(t *testing.T) {
	r := newReplayer(t, "s1", 1)
	a := uuid.New()
	if err := r.apply(torchEntry(t, "s0", 1, change.KindAdd, uuid.New())); err != nil {
		t.Fatalf("other session: %v", err)
	}
	if err := r.apply(torchEntry(t, "s1", 1, change.KindAdd, a)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := r.apply(torchEntry(t, "s1", 2, change.KindRemove, a)); err != nil {
		t.Fatalf("past to_seq: %v", err)
	}
	if err := r.apply(torchEntry(t, "s2", 1, change.KindAdd, uuid.New())); !errors.Is(err, errDone) {
		t.Fatalf("next session err = %v, want errDone", err)
	}
	if r.applied != 1 || r.rep.Store().Len() != 1 {
		t.Fatalf("replayer = %+v", r)
	}
}

func TestReplayer_RejectsGapsAndMismatches(t *testing.T) {
	r := newReplayer(t, "", 0)
	a := uuid.New()
	if err := r.apply(torchEntry(t, "s1", 1, change.KindAdd, a)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := r.apply(torchEntry(t, "s1", 3, change.KindRemove, a)); err == nil {
		t.Fatalf("seq gap accepted")
	}

	r = newReplayer(t, "", 0)
	e := torchEntry(t, "s1", 1, change.KindAdd, a)
	e.Kind = "REMOVE"
	if err := r.apply(e); err == nil {
		t.Fatalf("kind mismatch accepted")
	}
}

func TestReplayer_SkipsUnappliable(t *testing.T) {
	r := newReplayer(t, "", 0)
	id := uuid.New()
	raw, err := change.Encode(change.Record{Kind: change.KindAdd, ID: id, Type: "lamp", Pos: at, Payload: []byte{}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// A type this build does not know is skipped like on a live replica.
	e := world.ChangeLogEntry{Session: "s1", Seq: 1, Kind: "ADD", PartID: id.String(), Type: "lamp", Record: raw}
	if err := r.apply(e); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if r.skipped != 1 || r.applied != 0 {
		t.Fatalf("replayer = %+v", r)
	}
}
