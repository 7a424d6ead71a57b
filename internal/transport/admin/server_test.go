package admin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bdew/MCMultiPart/internal/logging"
	"github.com/bdew/MCMultiPart/internal/protocol"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
	"github.com/bdew/MCMultiPart/internal/sim/parts/kinds"
	"github.com/bdew/MCMultiPart/internal/sim/world"
)

func mustPayload(t *testing.T, p parts.Part) []byte {
	t.Helper()
	b, err := parts.UpdatePayload(p)
	if err != nil {
		t.Fatalf("UpdatePayload(%s): %v", p.Type(), err)
	}
	return b
}

func newTestServer(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	reg := parts.NewRegistry()
	if err := kinds.RegisterDefaults(reg, nil); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "world_admin", TickRateHz: 50}, reg, logging.Discard())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	s, err := NewServer(w, logging.Discard())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	mux := http.NewServeMux()
	s.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return w, srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, protocol.PartResponse) {
	t.Helper()
	res, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer res.Body.Close()
	var resp protocol.PartResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	if !protocol.IsKnownCode(resp.Code) {
		t.Fatalf("%s returned unknown code %q", path, resp.Code)
	}
	return res.StatusCode, resp
}

func TestAdmin_PartLifecycle(t *testing.T) {
	w, srv := newTestServer(t)

	payload := base64.StdEncoding.EncodeToString(mustPayload(t, &kinds.Torch{Facing: kinds.FaceUp}))
	status, resp := post(t, srv, "/admin/v1/parts/add", fmt.Sprintf(`{"pos":[5,64,-2],"type":"torch","payload":%q}`, payload))
	if status != http.StatusOK || !resp.OK || resp.ID == "" {
		t.Fatalf("add: %d %+v", status, resp)
	}
	id := resp.ID

	lit := base64.StdEncoding.EncodeToString(mustPayload(t, &kinds.Torch{Facing: kinds.FaceUp, Lit: true}))
	status, resp = post(t, srv, "/admin/v1/parts/update", fmt.Sprintf(`{"pos":[5,64,-2],"id":%q,"payload":%q,"rerender":true}`, id, lit))
	if status != http.StatusOK || !resp.OK {
		t.Fatalf("update: %d %+v", status, resp)
	}
	got, err := w.PartsAt(context.Background(), change.BlockPos{X: 5, Y: 64, Z: -2})
	if err != nil {
		t.Fatalf("PartsAt: %v", err)
	}
	if len(got) != 1 || got[0].ID.String() != id || !bytes.Equal(got[0].Payload, mustPayload(t, &kinds.Torch{Facing: kinds.FaceUp, Lit: true})) {
		t.Fatalf("PartsAt = %+v", got)
	}

	status, resp = post(t, srv, "/admin/v1/parts/remove", fmt.Sprintf(`{"pos":[5,64,-2],"id":%q}`, id))
	if status != http.StatusOK || !resp.OK {
		t.Fatalf("remove: %d %+v", status, resp)
	}
	status, resp = post(t, srv, "/admin/v1/parts/remove", fmt.Sprintf(`{"pos":[5,64,-2],"id":%q}`, id))
	if status != http.StatusNotFound || resp.Code != protocol.ErrNotFound {
		t.Fatalf("second remove: %d %+v", status, resp)
	}
}

func TestAdmin_Rejects(t *testing.T) {
	_, srv := newTestServer(t)

	cases := []struct {
		path, body, code string
	}{
		{"/admin/v1/parts/add", `{"pos":[0,0,0],"type":"lantern"}`, protocol.ErrUnknownType},
		{"/admin/v1/parts/add", `{"pos":[0,0,0],"type":"torch","payload":"Bw=="}`, protocol.ErrBadPayload},
		{"/admin/v1/parts/add", `{"pos":[0,0],"type":"torch"}`, protocol.ErrProtoBadRequest},
		{"/admin/v1/parts/add", `not json`, protocol.ErrProtoBadRequest},
		{"/admin/v1/parts/remove", `{"pos":[0,0,0],"id":"not-a-uuid"}`, protocol.ErrProtoBadRequest},
		{"/admin/v1/parts/update", `{"pos":[0,0,0],"id":"6f1c2a4e-8d3b-4c5f-9e7a-0b1c2d3e4f50","payload":"AAA="}`, protocol.ErrNotFound},
	}
	for _, tc := range cases {
		status, resp := post(t, srv, tc.path, tc.body)
		if resp.OK || resp.Code != tc.code {
			t.Fatalf("%s %s: %d %+v, want code %s", tc.path, tc.body, status, resp, tc.code)
		}
	}
}

func TestAdmin_State(t *testing.T) {
	_, srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer res.Body.Close()
	var st stateResponse
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.WorldID != "world_admin" || len(st.Digest) != 16 {
		t.Fatalf("state = %+v", st)
	}
}
