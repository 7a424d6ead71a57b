package world

import (
	"github.com/apex/log"

	"github.com/bdew/MCMultiPart/internal/metrics"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
)

// ObserverJoinRequest registers a read-only observer session. Out receives
// one encoded change record per frame. The world closes Out when the session
// leaves, is replaced, or falls too far behind.
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte

	Center      change.BlockPos
	ChunkRadius int
}

// ObserverSubscribeRequest moves an existing session's watched area.
type ObserverSubscribeRequest struct {
	SessionID string

	Center      change.BlockPos
	ChunkRadius int
}

type observerClient struct {
	id  string
	out chan []byte
	cfg observerCfg
}

type observerCfg struct {
	centerCX, centerCZ int32
	chunkRadius        int32
}

func (c observerCfg) watches(pos change.BlockPos) bool {
	dx := pos.ChunkX() - c.centerCX
	dz := pos.ChunkZ() - c.centerCZ
	return abs32(dx) <= c.chunkRadius && abs32(dz) <= c.chunkRadius
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func (w *World) RequestObserverJoin(req ObserverJoinRequest) bool {
	select {
	case w.observerJoin <- req:
		return true
	default:
		return false
	}
}

func (w *World) RequestObserverSubscribe(req ObserverSubscribeRequest) bool {
	select {
	case w.observerSub <- req:
		return true
	default:
		return false
	}
}

func (w *World) RequestObserverLeave(sessionID string) {
	select {
	case w.observerLeave <- sessionID:
	case <-w.stopped:
	}
}

func (w *World) observerCfgFor(center change.BlockPos, radius int, fallback int32) observerCfg {
	r := fallback
	if radius > 0 {
		r = int32(radius)
	}
	if limit := int32(w.cfg.MaxChunkRadius); limit > 0 && r > limit {
		r = limit
	}
	if r < 0 {
		r = 0
	}
	return observerCfg{centerCX: center.ChunkX(), centerCZ: center.ChunkZ(), chunkRadius: r}
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if w == nil || req.SessionID == "" || req.Out == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		w.dropObserver(old)
	}
	if len(w.observers) >= w.cfg.MaxObservers {
		w.log.WithField("session", req.SessionID).Warn("observer limit reached")
		close(req.Out)
		return
	}
	c := &observerClient{
		id:  req.SessionID,
		out: req.Out,
		cfg: w.observerCfgFor(req.Center, req.ChunkRadius, int32(w.cfg.DefaultChunkRadius)),
	}
	w.observers[c.id] = c
	w.observerCount.Store(int64(len(w.observers)))
	metrics.Observers.Set(float64(len(w.observers)))
	w.log.WithFields(log.Fields{"session": c.id, "chunk_radius": c.cfg.chunkRadius}).Info("observer joined")

	w.syncView(c, observerCfg{chunkRadius: -1}, c.cfg)
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	prev := c.cfg
	c.cfg = w.observerCfgFor(req.Center, req.ChunkRadius, prev.chunkRadius)
	w.syncView(c, prev, c.cfg)
}

func (w *World) handleObserverLeave(sessionID string) {
	if sessionID == "" {
		return
	}
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	w.dropObserver(c)
	w.log.WithField("session", sessionID).Info("observer left")
}

func (w *World) dropObserver(c *observerClient) {
	delete(w.observers, c.id)
	close(c.out)
	w.observerCount.Store(int64(len(w.observers)))
	metrics.Observers.Set(float64(len(w.observers)))
}

func (w *World) closeObservers() {
	for _, c := range w.observers {
		w.dropObserver(c)
	}
}

// syncView brings an observer from the prev area to next: parts that leave
// the view are removed on the replica, parts that enter it are added. A
// radius of -1 in prev means nothing was visible yet.
func (w *World) syncView(c *observerClient, prev, next observerCfg) {
	for _, pos := range w.store.Positions() {
		was := prev.chunkRadius >= 0 && prev.watches(pos)
		now := next.watches(pos)
		if was == now {
			continue
		}
		kind := change.KindAdd
		if was {
			kind = change.KindRemove
		}
		cont, _ := w.store.FindContainer(pos)
		for _, e := range cont.Entries() {
			rec, err := parts.NewChange(w.store, pos, e.Part, kind)
			if err != nil {
				w.log.WithError(err).Error("observer sync")
				continue
			}
			frame, err := change.Encode(rec)
			if err != nil {
				w.log.WithError(err).Error("observer sync encode")
				continue
			}
			if !w.sendTo(c, frame) {
				return
			}
		}
	}
}

func (w *World) sendToObservers(pos change.BlockPos, frame []byte) {
	for _, c := range w.observers {
		if !c.cfg.watches(pos) {
			continue
		}
		w.sendTo(c, frame)
	}
}

// sendTo queues frame without blocking. Records cannot be skipped without
// desyncing the replica, so a full queue disconnects the observer instead.
func (w *World) sendTo(c *observerClient, frame []byte) bool {
	select {
	case c.out <- frame:
		metrics.RecordsSent.Inc()
		return true
	default:
	}
	w.log.WithField("session", c.id).Warn("observer queue full, disconnecting")
	metrics.ObserversKicked.Inc()
	w.dropObserver(c)
	return false
}
