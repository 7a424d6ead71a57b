package parts

import (
	"fmt"

	"github.com/apex/log"

	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/encoding"
)

// Effects receives the visual refresh requests a change produces.
type Effects interface {
	MarkForRerender(pos change.BlockPos)
	CheckLight(pos change.BlockPos)
}

type noEffects struct{}

func (noEffects) MarkForRerender(change.BlockPos) {}
func (noEffects) CheckLight(change.BlockPos)      {}

// Engine applies decoded change records to a container view. It does no
// locking; Apply must run on the goroutine that owns the containers.
type Engine struct {
	factory PartFactory
	fx      Effects
	log     log.Interface
}

func NewEngine(factory PartFactory, fx Effects, logger log.Interface) *Engine {
	if fx == nil {
		fx = noEffects{}
	}
	if logger == nil {
		logger = log.Log
	}
	return &Engine{factory: factory, fx: fx, log: logger.WithField("module", "parts")}
}

// Apply performs one record. Missing containers or parts are not errors: the
// part may already be gone because of an earlier change. Records without a
// valid kind and calls without a container view are dropped.
func (e *Engine) Apply(cs Containers, rec change.Record) error {
	if cs == nil || !rec.Kind.Valid() {
		return nil
	}
	switch rec.Kind {
	case change.KindAdd:
		return e.applyAdd(cs, rec)
	case change.KindRemove:
		e.applyRemove(cs, rec)
		return nil
	default:
		return e.applyUpdate(cs, rec)
	}
}

func (e *Engine) applyAdd(cs Containers, rec change.Record) error {
	p, err := e.factory.CreatePart(rec.Type, rec.Payload)
	if err != nil {
		return err
	}
	if err := cs.AddPart(rec.Pos, p, rec.ID); err != nil {
		return err
	}
	if p.HasModel() {
		e.fx.MarkForRerender(rec.Pos)
	}
	e.fx.CheckLight(rec.Pos)
	return nil
}

func (e *Engine) applyRemove(cs Containers, rec change.Record) {
	c, ok := cs.FindContainer(rec.Pos)
	if !ok {
		return
	}
	p, found := c.Part(rec.ID)
	if found {
		cs.RemovePart(rec.Pos, p)
	} else {
		e.log.WithFields(recordFields(rec)).Debug("remove: part already gone")
	}
	if !found || p.HasModel() {
		e.fx.MarkForRerender(rec.Pos)
	}
	e.fx.CheckLight(rec.Pos)
}

func (e *Engine) applyUpdate(cs Containers, rec change.Record) error {
	p, ok := cs.FindPart(rec.Pos, rec.ID)
	if !ok {
		e.log.WithFields(recordFields(rec)).Debug("update: part not present")
		return nil
	}
	if err := p.ReadUpdate(encoding.NewReader(rec.Payload)); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrBadPayload, rec.Type, rec.ID, err)
	}
	if rec.Kind == change.KindUpdateRerender {
		e.fx.MarkForRerender(rec.Pos)
	}
	return nil
}

// NewChange builds the outgoing record for a part that is attached at pos.
// For removals it must be called before the part is detached. A missing
// container or an unattached part means the caller is out of sync with
// storage; that is reported as ErrIllegalState and must not be ignored.
func NewChange(cs Containers, pos change.BlockPos, p Part, kind change.Kind) (change.Record, error) {
	if !kind.Valid() {
		return change.Record{}, fmt.Errorf("%w: %s", change.ErrUnknownKind, kind)
	}
	c, ok := cs.FindContainer(pos)
	if !ok {
		return change.Record{}, fmt.Errorf("%w: attempted to %s a part at an illegal position %s", ErrIllegalState, kindVerb(kind), pos)
	}
	id, ok := cs.IDOf(c, p)
	if !ok {
		return change.Record{}, fmt.Errorf("%w: attempted to %s a %s part not attached at %s", ErrIllegalState, kindVerb(kind), p.Type(), pos)
	}
	rec := change.Record{Kind: kind, ID: id, Type: p.Type(), Pos: pos}
	if kind.HasPayload() {
		payload, err := UpdatePayload(p)
		if err != nil {
			return change.Record{}, err
		}
		rec.Payload = payload
		if len(rec.Payload) > change.MaxPayloadLen {
			return change.Record{}, fmt.Errorf("%w: %s part at %s wrote %d bytes", change.ErrPayloadTooLarge, p.Type(), pos, len(rec.Payload))
		}
	}
	return rec, nil
}

func kindVerb(k change.Kind) string {
	switch k {
	case change.KindAdd:
		return "add"
	case change.KindRemove:
		return "remove"
	default:
		return "update"
	}
}

func recordFields(rec change.Record) log.Fields {
	return log.Fields{
		"kind":    rec.Kind.String(),
		"part_id": rec.ID.String(),
		"type":    rec.Type,
		"pos":     rec.Pos.String(),
	}
}
