package world

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bdew/MCMultiPart/internal/metrics"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/encoding"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
)

func readPayload(p parts.Part, payload []byte) error {
	if err := p.ReadUpdate(encoding.NewReader(payload)); err != nil {
		return fmt.Errorf("%w: %s: %v", parts.ErrBadPayload, p.Type(), err)
	}
	return nil
}

func (w *World) addPart(pos change.BlockPos, p parts.Part) (uuid.UUID, error) {
	if p == nil {
		return uuid.Nil, fmt.Errorf("%w: nil part at %s", parts.ErrUnknownType, pos)
	}
	if !w.registry.Known(p.Type()) {
		return uuid.Nil, fmt.Errorf("%w: %q", parts.ErrUnknownType, p.Type())
	}
	payload, err := parts.UpdatePayload(p)
	if err != nil {
		return uuid.Nil, err
	}
	if n := len(payload); n > w.cfg.MaxPayload {
		return uuid.Nil, fmt.Errorf("%w: %s payload is %d bytes, limit %d", change.ErrPayloadTooLarge, p.Type(), n, w.cfg.MaxPayload)
	}
	id, err := w.store.Attach(pos, p)
	if err != nil {
		return uuid.Nil, err
	}
	rec, err := parts.NewChange(w.store, pos, p, change.KindAdd)
	if err != nil {
		w.store.RemovePart(pos, p)
		return uuid.Nil, err
	}
	w.publish(rec)
	return id, nil
}

func (w *World) removePart(pos change.BlockPos, id uuid.UUID) error {
	p, ok := w.store.FindPart(pos, id)
	if !ok {
		return fmt.Errorf("%w: %s at %s", ErrPartNotFound, id, pos)
	}
	// The record needs the identity, so build it before detaching.
	rec, err := parts.NewChange(w.store, pos, p, change.KindRemove)
	if err != nil {
		return err
	}
	w.store.RemovePart(pos, p)
	w.publish(rec)
	return nil
}

func (w *World) mutatePart(pos change.BlockPos, id uuid.UUID, fn func(parts.Part) error, rerender bool) error {
	p, ok := w.store.FindPart(pos, id)
	if !ok {
		return fmt.Errorf("%w: %s at %s", ErrPartNotFound, id, pos)
	}
	// Nothing is published until the new state passed every check, so a
	// rejected mutation puts the part back the way observers last saw it.
	before, err := parts.UpdatePayload(p)
	if err != nil {
		return err
	}
	rec, err := w.applyMutation(pos, p, fn, rerender)
	if err != nil {
		if rerr := readPayload(p, before); rerr != nil {
			w.log.WithError(rerr).WithField("part", id.String()).Error("restore part after rejected mutation")
		}
		return err
	}
	w.publish(rec)
	return nil
}

func (w *World) applyMutation(pos change.BlockPos, p parts.Part, fn func(parts.Part) error, rerender bool) (change.Record, error) {
	if err := fn(p); err != nil {
		return change.Record{}, err
	}
	kind := change.KindUpdate
	if rerender {
		kind = change.KindUpdateRerender
	}
	rec, err := parts.NewChange(w.store, pos, p, kind)
	if err != nil {
		return change.Record{}, err
	}
	if len(rec.Payload) > w.cfg.MaxPayload {
		return change.Record{}, fmt.Errorf("%w: %s payload is %d bytes, limit %d", change.ErrPayloadTooLarge, p.Type(), len(rec.Payload), w.cfg.MaxPayload)
	}
	return rec, nil
}

// publish encodes rec once, journals it and fans it out to every observer
// watching its chunk.
func (w *World) publish(rec change.Record) {
	frame, err := change.Encode(rec)
	if err != nil {
		// NewChange already enforced every encode precondition.
		w.log.WithError(err).WithField("record", rec.String()).Error("encode change")
		return
	}
	metrics.RecordsEncoded.WithLabelValues(rec.Kind.String()).Inc()
	w.seq++
	if w.changeLogger != nil {
		entry := ChangeLogEntry{
			Session: w.session,
			Tick:    w.tick.Load(),
			Seq:     w.seq,
			Kind:    rec.Kind.String(),
			PartID:  rec.ID.String(),
			Type:    rec.Type,
			Pos:     [3]int32{rec.Pos.X, rec.Pos.Y, rec.Pos.Z},
			Record:  frame,
		}
		if err := w.changeLogger.WriteChange(entry); err != nil {
			w.log.WithError(err).Warn("journal change")
		}
	}
	w.sendToObservers(rec.Pos, frame)
}
