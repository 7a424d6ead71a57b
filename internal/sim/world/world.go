package world

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
)

var (
	ErrPartNotFound = errors.New("part not found")
	ErrStopped      = errors.New("world stopped")
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	DefaultChunkRadius int
	MaxChunkRadius     int
	MaxObservers       int
	MaxPayload         int
}

// ChangeLogEntry is one journaled authoritative change. Record holds the
// exact wire bytes sent to observers.
type ChangeLogEntry struct {
	// Session identifies one run of the world; Seq restarts at 1 in each.
	Session string   `json:"session"`
	Tick    uint64   `json:"tick"`
	Seq     uint64   `json:"seq"`
	Kind    string   `json:"kind"`
	PartID  string   `json:"part_id"`
	Type    string   `json:"type"`
	Pos     [3]int32 `json:"pos"`
	Record  []byte   `json:"record"`
}

type ChangeLogger interface {
	WriteChange(entry ChangeLogEntry) error
}

// World is the authoritative owner of every part container.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	log      log.Interface
	registry *parts.Registry
	store    *parts.Store

	session string
	tick    atomic.Uint64
	seq     uint64

	observers     map[string]*observerClient
	observerCount atomic.Int64

	calls         chan func()
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	stop          chan struct{}
	stopped       chan struct{}

	// Optional (may be nil). Implemented in internal/persistence/*.
	changeLogger ChangeLogger
}

func New(cfg WorldConfig, reg *parts.Registry, logger log.Interface) (*World, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("world: empty id")
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world %s: tick rate must be positive", cfg.ID)
	}
	if reg == nil {
		return nil, fmt.Errorf("world %s: nil part registry", cfg.ID)
	}
	if cfg.MaxPayload <= 0 || cfg.MaxPayload > change.MaxPayloadLen {
		cfg.MaxPayload = change.MaxPayloadLen
	}
	if cfg.MaxChunkRadius < cfg.DefaultChunkRadius {
		cfg.MaxChunkRadius = cfg.DefaultChunkRadius
	}
	if cfg.MaxObservers <= 0 {
		cfg.MaxObservers = 256
	}
	if logger == nil {
		logger = log.Log
	}
	return &World{
		cfg:           cfg,
		log:           logger.WithFields(log.Fields{"module": "world", "world": cfg.ID}),
		registry:      reg,
		store:         parts.NewStore(),
		session:       uuid.NewString(),
		observers:     map[string]*observerClient{},
		calls:         make(chan func(), 1024),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 64),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

func (w *World) SetChangeLogger(l ChangeLogger) { w.changeLogger = l }

func (w *World) Session() string { return w.session }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) PartTypes() []string { return w.registry.Types() }

func (w *World) ObserverCount() int { return int(w.observerCount.Load()) }

func (w *World) Registry() *parts.Registry { return w.registry }

// call runs fn on the world loop and waits for it.
func (w *World) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case w.calls <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopped:
		return ErrStopped
	}
}

// AddPart attaches p at pos under a fresh identity and replicates it.
func (w *World) AddPart(ctx context.Context, pos change.BlockPos, p parts.Part) (uuid.UUID, error) {
	var (
		id  uuid.UUID
		err error
	)
	if cerr := w.call(ctx, func() { id, err = w.addPart(pos, p) }); cerr != nil {
		return uuid.Nil, cerr
	}
	return id, err
}

func (w *World) RemovePart(ctx context.Context, pos change.BlockPos, id uuid.UUID) error {
	var err error
	if cerr := w.call(ctx, func() { err = w.removePart(pos, id) }); cerr != nil {
		return cerr
	}
	return err
}

// UpdatePart feeds payload into the part's update path and replicates the new
// state. rerender asks observers to redraw the block.
func (w *World) UpdatePart(ctx context.Context, pos change.BlockPos, id uuid.UUID, payload []byte, rerender bool) error {
	return w.MutatePart(ctx, pos, id, func(p parts.Part) error {
		return readPayload(p, payload)
	}, rerender)
}

// MutatePart runs fn against the live part on the world loop, then replicates.
func (w *World) MutatePart(ctx context.Context, pos change.BlockPos, id uuid.UUID, fn func(parts.Part) error, rerender bool) error {
	var err error
	if cerr := w.call(ctx, func() { err = w.mutatePart(pos, id, fn, rerender) }); cerr != nil {
		return cerr
	}
	return err
}

// Digest hashes the authoritative part state.
func (w *World) Digest(ctx context.Context) (uint64, error) {
	var d uint64
	if err := w.call(ctx, func() { d = w.store.Digest() }); err != nil {
		return 0, err
	}
	return d, nil
}

// PartInfo is a read-only view of one part for callers outside the loop.
type PartInfo struct {
	ID      uuid.UUID
	Type    string
	Pos     change.BlockPos
	Payload []byte
}

func (w *World) PartsAt(ctx context.Context, pos change.BlockPos) ([]PartInfo, error) {
	var (
		out     []PartInfo
		readErr error
	)
	err := w.call(ctx, func() {
		c, ok := w.store.FindContainer(pos)
		if !ok {
			return
		}
		for _, e := range c.Entries() {
			payload, err := parts.UpdatePayload(e.Part)
			if err != nil {
				readErr = err
				return
			}
			out = append(out, PartInfo{ID: e.ID, Type: e.Part.Type(), Pos: pos, Payload: payload})
		}
	})
	if err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}
