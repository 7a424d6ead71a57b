// Package replica is the observer-side copy of the part state. Frames are
// decoded on the receiving goroutine and applied on the replica's own loop.
package replica

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/apex/log"

	"github.com/bdew/MCMultiPart/internal/metrics"
	"github.com/bdew/MCMultiPart/internal/protocol"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
)

var ErrStopped = errors.New("replica stopped")

type Config struct {
	TickRateHz int
	QueueSize  int
}

// DirtyTracker collects refresh requests until the next drain.
type DirtyTracker struct {
	rerender map[change.BlockPos]struct{}
	light    map[change.BlockPos]struct{}
}

func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{rerender: map[change.BlockPos]struct{}{}, light: map[change.BlockPos]struct{}{}}
}

func (d *DirtyTracker) MarkForRerender(pos change.BlockPos) { d.rerender[pos] = struct{}{} }

func (d *DirtyTracker) CheckLight(pos change.BlockPos) { d.light[pos] = struct{}{} }

// Drain returns and clears the pending positions, sorted.
func (d *DirtyTracker) Drain() (rerender, light []change.BlockPos) {
	rerender = sortedKeys(d.rerender)
	light = sortedKeys(d.light)
	d.rerender = map[change.BlockPos]struct{}{}
	d.light = map[change.BlockPos]struct{}{}
	return rerender, light
}

func sortedKeys(m map[change.BlockPos]struct{}) []change.BlockPos {
	if len(m) == 0 {
		return nil
	}
	out := make([]change.BlockPos, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Refresh is what one tick of applied records asks the renderer to do.
type Refresh struct {
	Tick     uint64
	Rerender []change.BlockPos
	Light    []change.BlockPos
}

type Replica struct {
	cfg    Config
	log    log.Interface
	store  *parts.Store
	engine *parts.Engine
	dirty  *DirtyTracker

	tasks   chan func()
	tick    uint64
	stopped chan struct{}

	// Optional (may be nil). Called on the replica loop.
	OnRefresh func(Refresh)
}

func New(cfg Config, factory parts.PartFactory, logger log.Interface) (*Replica, error) {
	if factory == nil {
		return nil, fmt.Errorf("replica: nil part factory")
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if logger == nil {
		logger = log.Log
	}
	l := logger.WithField("module", "replica")
	dirty := NewDirtyTracker()
	return &Replica{
		cfg:     cfg,
		log:     l,
		store:   parts.NewStore(),
		engine:  parts.NewEngine(factory, dirty, l),
		dirty:   dirty,
		tasks:   make(chan func(), cfg.QueueSize),
		stopped: make(chan struct{}),
	}, nil
}

// Receive decodes one frame and schedules it for the replica loop. A decode
// failure is returned and nothing is scheduled; the caller decides whether
// the stream is still usable.
func (r *Replica) Receive(ctx context.Context, frame []byte) error {
	rec, err := change.Decode(frame)
	if err != nil {
		metrics.RecordsDropped.WithLabelValues(protocol.CodeOf(err)).Inc()
		return err
	}
	metrics.RecordsDecoded.WithLabelValues(rec.Kind.String()).Inc()
	return r.Schedule(ctx, func() { r.apply(rec) })
}

// Schedule queues fn for the replica loop, blocking while the queue is full.
func (r *Replica) Schedule(ctx context.Context, fn func()) error {
	select {
	case r.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}
}

func (r *Replica) apply(rec change.Record) {
	if err := r.engine.Apply(r.store, rec); err != nil {
		metrics.RecordsDropped.WithLabelValues(protocol.CodeOf(err)).Inc()
		r.log.WithError(err).WithField("record", rec.String()).Warn("apply change")
		return
	}
	metrics.RecordsApplied.WithLabelValues(rec.Kind.String()).Inc()
}

// Apply runs rec synchronously. It must not be called while Run is active.
func (r *Replica) Apply(rec change.Record) error {
	if err := r.engine.Apply(r.store, rec); err != nil {
		return err
	}
	metrics.RecordsApplied.WithLabelValues(rec.Kind.String()).Inc()
	return nil
}

func (r *Replica) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.TickRateHz))
	defer ticker.Stop()
	defer close(r.stopped)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.tasks:
			fn()
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Replica) flush() {
	r.tick++
	rerender, light := r.dirty.Drain()
	if r.OnRefresh == nil || (len(rerender) == 0 && len(light) == 0) {
		return
	}
	r.OnRefresh(Refresh{Tick: r.tick, Rerender: rerender, Light: light})
}

// Digest hashes the replica state. Schedule it when Run is active.
func (r *Replica) Digest() uint64 { return r.store.Digest() }

func (r *Replica) Store() *parts.Store { return r.store }

// Dirty exposes pending refreshes for callers that apply synchronously.
func (r *Replica) Dirty() *DirtyTracker { return r.dirty }
