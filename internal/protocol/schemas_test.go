package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdew/MCMultiPart/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := protocol.CompileSchema(name)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, raw string) {
		t.Helper()
		if err := protocol.ValidateJSON(s, []byte(raw)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}
	reject := func(s *jsonschema.Schema, raw string) {
		t.Helper()
		if err := protocol.ValidateJSON(s, []byte(raw)); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}

	subSchema := compile(protocol.SchemaSubscribe)
	bootSchema := compile(protocol.SchemaBootstrap)
	addSchema := compile(protocol.SchemaAddPart)
	removeSchema := compile(protocol.SchemaRemovePart)
	updateSchema := compile(protocol.SchemaUpdatePart)

	validate(subSchema, `{"type":"SUBSCRIBE","protocol_version":"1.0","center":[5,64,-2],"chunk_radius":4}`)
	reject(subSchema, `{"type":"SUBSCRIBE","protocol_version":"1.0","center":[5,64],"chunk_radius":4}`)
	reject(subSchema, `{"type":"HELLO","protocol_version":"1.0","center":[0,0,0],"chunk_radius":1}`)

	validate(bootSchema, `{
	  "type":"BOOTSTRAP",
	  "protocol_version":"1.0",
	  "world_id":"world_1",
	  "tick":12,
	  "tick_rate_hz":20,
	  "max_chunk_radius":16,
	  "max_payload":16777215,
	  "part_types":["marker","sign","slab","torch"]
	}`)

	validate(addSchema, `{"pos":[5,64,-2],"type":"torch","payload":"AQE="}`)
	reject(addSchema, `{"pos":[5,64,-2],"type":""}`)
	validate(removeSchema, `{"pos":[5,64,-2],"id":"6f1c2a4e-8d3b-4c5f-9e7a-0b1c2d3e4f50"}`)
	reject(removeSchema, `{"pos":[5,64,-2]}`)
	validate(updateSchema, `{"pos":[0,0,0],"id":"6f1c2a4e-8d3b-4c5f-9e7a-0b1c2d3e4f50","payload":"AAE=","rerender":true}`)
	reject(updateSchema, `{"pos":[0,0,0],"id":"6f1c2a4e-8d3b-4c5f-9e7a-0b1c2d3e4f50","payload":"AAE=","extra":1}`)
}

func TestSchemas_MatchGoMessages(t *testing.T) {
	s, err := protocol.CompileSchema(protocol.SchemaBootstrap)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	raw, err := json.Marshal(protocol.BootstrapResponse{
		Type:            protocol.TypeBootstrap,
		ProtocolVersion: protocol.Version,
		WorldID:         "world_1",
		TickRateHz:      20,
		MaxChunkRadius:  8,
		MaxPayload:      1 << 20,
		PartTypes:       []string{"torch"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := protocol.ValidateJSON(s, raw); err != nil {
		t.Fatalf("bootstrap response does not match schema: %v", err)
	}

	s, err = protocol.CompileSchema(protocol.SchemaAddPart)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	raw, err = json.Marshal(protocol.AddPartRequest{Pos: [3]int32{1, 2, 3}, Type: "torch", Payload: []byte{1, 0}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := protocol.ValidateJSON(s, raw); err != nil {
		t.Fatalf("add request does not match schema: %v", err)
	}
}
