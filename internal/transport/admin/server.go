// Package admin serves the local-only HTTP endpoints that mutate parts on the
// authoritative world.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdew/MCMultiPart/internal/protocol"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/world"
	"github.com/bdew/MCMultiPart/internal/transport"
)

const maxBody = 4 << 20

type Server struct {
	world *world.World
	log   log.Interface

	addSchema    *jsonschema.Schema
	removeSchema *jsonschema.Schema
	updateSchema *jsonschema.Schema

	// AllowRemote disables the loopback-only check.
	AllowRemote bool
	Timeout     time.Duration
}

func NewServer(w *world.World, logger log.Interface) (*Server, error) {
	s := &Server{world: w, Timeout: 5 * time.Second}
	if logger == nil {
		logger = log.Log
	}
	s.log = logger.WithField("module", "admin")
	var err error
	if s.addSchema, err = protocol.CompileSchema(protocol.SchemaAddPart); err != nil {
		return nil, err
	}
	if s.removeSchema, err = protocol.CompileSchema(protocol.SchemaRemovePart); err != nil {
		return nil, err
	}
	if s.updateSchema, err = protocol.CompileSchema(protocol.SchemaUpdatePart); err != nil {
		return nil, err
	}
	return s, nil
}

// Register mounts the handlers on mux under /admin/v1/.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", s.handleState)
	mux.HandleFunc("/admin/v1/parts/add", s.post(s.addSchema, s.addPart))
	mux.HandleFunc("/admin/v1/parts/remove", s.post(s.removeSchema, s.removePart))
	mux.HandleFunc("/admin/v1/parts/update", s.post(s.updateSchema, s.updatePart))
}

type stateResponse struct {
	WorldID   string `json:"world_id"`
	Tick      uint64 `json:"tick"`
	Observers int    `json:"observers"`
	Digest    string `json:"digest"`
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.AllowRemote && !transport.IsLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()
	d, err := s.world.Digest(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, protocol.PartResponse{Code: protocol.ErrWorldBusy, Error: err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, stateResponse{
		WorldID:   s.world.ID(),
		Tick:      s.world.CurrentTick(),
		Observers: s.world.ObserverCount(),
		Digest:    fmt.Sprintf("%016x", d),
	})
}

type mutation func(ctx context.Context, body []byte) (uuid.UUID, error)

func (s *Server) post(schema *jsonschema.Schema, fn mutation) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.AllowRemote && !transport.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, protocol.PartResponse{Code: protocol.ErrProtoBadRequest, Error: err.Error()})
			return
		}
		if err := protocol.ValidateJSON(schema, body); err != nil {
			writeJSON(rw, http.StatusBadRequest, protocol.PartResponse{Code: protocol.ErrProtoBadRequest, Error: err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
		defer cancel()
		id, err := fn(ctx, body)
		if err != nil {
			code := codeOf(err)
			s.log.WithError(err).WithFields(log.Fields{"path": r.URL.Path, "code": code}).Info("admin request rejected")
			writeJSON(rw, statusOf(code), protocol.PartResponse{Code: code, Error: err.Error()})
			return
		}
		resp := protocol.PartResponse{OK: true}
		if id != uuid.Nil {
			resp.ID = id.String()
		}
		writeJSON(rw, http.StatusOK, resp)
	}
}

func (s *Server) addPart(ctx context.Context, body []byte) (uuid.UUID, error) {
	var req protocol.AddPartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return uuid.Nil, badRequest(err)
	}
	p, err := s.world.Registry().CreatePart(req.Type, req.Payload)
	if err != nil {
		return uuid.Nil, err
	}
	return s.world.AddPart(ctx, posOf(req.Pos), p)
}

func (s *Server) removePart(ctx context.Context, body []byte) (uuid.UUID, error) {
	var req protocol.RemovePartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return uuid.Nil, badRequest(err)
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return uuid.Nil, badRequest(err)
	}
	return id, s.world.RemovePart(ctx, posOf(req.Pos), id)
}

func (s *Server) updatePart(ctx context.Context, body []byte) (uuid.UUID, error) {
	var req protocol.UpdatePartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return uuid.Nil, badRequest(err)
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return uuid.Nil, badRequest(err)
	}
	return id, s.world.UpdatePart(ctx, posOf(req.Pos), id, req.Payload, req.Rerender)
}

var errBadRequest = errors.New("bad request")

func badRequest(err error) error { return fmt.Errorf("%w: %v", errBadRequest, err) }

func codeOf(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return protocol.ErrProtoBadRequest
	case errors.Is(err, world.ErrPartNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, world.ErrStopped):
		return protocol.ErrWorldBusy
	}
	return protocol.CodeOf(err)
}

func statusOf(code string) int {
	switch code {
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrWorldBusy:
		return http.StatusServiceUnavailable
	case protocol.ErrInternal, protocol.ErrIllegalState:
		return http.StatusInternalServerError
	case protocol.ErrDuplicatePart:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func posOf(p [3]int32) change.BlockPos { return change.BlockPos{X: p[0], Y: p[1], Z: p[2]} }

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
