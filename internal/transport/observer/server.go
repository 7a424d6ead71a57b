package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdew/MCMultiPart/internal/protocol"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/world"
	"github.com/bdew/MCMultiPart/internal/transport"
)

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	// AllowRemote disables the loopback-only check.
	AllowRemote bool
}

type Server struct {
	world *world.World
	log   log.Interface
	opts  Options

	subscribe *jsonschema.Schema
	upgrader  websocket.Upgrader
	nextID    atomic.Uint64
}

func NewServer(w *world.World, opts Options, logger log.Interface) (*Server, error) {
	sub, err := protocol.CompileSchema(protocol.SchemaSubscribe)
	if err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = log.Log
	}
	return &Server{
		world:     w,
		log:       logger.WithField("module", "observer"),
		opts:      opts,
		subscribe: sub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}, nil
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || transport.IsLoopbackRemote(r.RemoteAddr)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		resp := protocol.BootstrapResponse{
			Type:            protocol.TypeBootstrap,
			ProtocolVersion: protocol.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			TickRateHz:      cfg.TickRateHz,
			MaxChunkRadius:  cfg.MaxChunkRadius,
			MaxPayload:      cfg.MaxPayload,
			PartTypes:       s.world.PartTypes(),
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// parseSubscribe validates a SUBSCRIBE text frame.
func (s *Server) parseSubscribe(msg []byte) (protocol.SubscribeMsg, error) {
	var sub protocol.SubscribeMsg
	if err := protocol.ValidateJSON(s.subscribe, msg); err != nil {
		return sub, err
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, err
	}
	if sub.ProtocolVersion != protocol.Version {
		return sub, fmt.Errorf("unsupported protocol_version %q", sub.ProtocolVersion)
	}
	return sub, nil
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := s.parseSubscribe(msg)
		if err != nil {
			s.log.WithError(err).Debug("bad subscribe")
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, s.opts.QueueSize)
		joinReq := world.ObserverJoinRequest{
			SessionID:   sid,
			Out:         out,
			Center:      centerOf(sub),
			ChunkRadius: sub.ChunkRadius,
		}
		if !s.world.RequestObserverJoin(joinReq) {
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		defer s.world.RequestObserverLeave(sid)
		l := s.log.WithField("session", sid)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. A closed out channel means the world dropped us.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						closeWith(conn, websocket.CloseTryAgainLater, "observer dropped")
						_ = conn.Close()
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
					if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
						_ = conn.Close()
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, err := s.parseSubscribe(msg)
			if err != nil {
				l.WithError(err).Debug("ignoring bad subscribe update")
				continue
			}
			req := world.ObserverSubscribeRequest{
				SessionID:   sid,
				Center:      centerOf(sub),
				ChunkRadius: sub.ChunkRadius,
			}
			if !s.world.RequestObserverSubscribe(req) {
				// Drop updates under load; the client may resend.
				l.Debug("subscribe update dropped")
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func centerOf(sub protocol.SubscribeMsg) change.BlockPos {
	return change.BlockPos{X: sub.Center[0], Y: sub.Center[1], Z: sub.Center[2]}
}
