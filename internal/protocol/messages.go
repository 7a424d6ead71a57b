package protocol

// SUBSCRIBE (observer -> server). First text message on the observer WS
// connection; may be re-sent to move the watched area. After it the server
// sends binary frames, one change record each.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Center          [3]int32 `json:"center"`
	ChunkRadius     int      `json:"chunk_radius"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	WorldID         string   `json:"world_id"`
	Tick            uint64   `json:"tick"`
	TickRateHz      int      `json:"tick_rate_hz"`
	MaxChunkRadius  int      `json:"max_chunk_radius"`
	MaxPayload      int      `json:"max_payload"`
	PartTypes       []string `json:"part_types"`
}

// Admin requests (POST /admin/v1/parts/*). Payloads are base64 in JSON.
type AddPartRequest struct {
	Pos     [3]int32 `json:"pos"`
	Type    string   `json:"type"`
	Payload []byte   `json:"payload"`
}

type RemovePartRequest struct {
	Pos [3]int32 `json:"pos"`
	ID  string   `json:"id"`
}

type UpdatePartRequest struct {
	Pos      [3]int32 `json:"pos"`
	ID       string   `json:"id"`
	Payload  []byte   `json:"payload"`
	Rerender bool     `json:"rerender,omitempty"`
}

type PartResponse struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}
