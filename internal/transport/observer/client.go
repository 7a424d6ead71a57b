package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"

	"github.com/bdew/MCMultiPart/internal/protocol"
	"github.com/bdew/MCMultiPart/internal/protocol/change"
)

// Receiver consumes binary change frames; *replica.Replica implements it.
type Receiver interface {
	Receive(ctx context.Context, frame []byte) error
}

type Client struct {
	conn *websocket.Conn
	log  log.Interface
}

// FetchBootstrap reads GET /v1/observer/bootstrap from baseURL (http://host:port).
func FetchBootstrap(ctx context.Context, baseURL string) (protocol.BootstrapResponse, error) {
	var resp protocol.BootstrapResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/observer/bootstrap", nil)
	if err != nil {
		return resp, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return resp, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("bootstrap: %s", res.Status)
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("bootstrap: %w", err)
	}
	if resp.ProtocolVersion != protocol.Version {
		return resp, fmt.Errorf("bootstrap: server speaks protocol %q", resp.ProtocolVersion)
	}
	return resp, nil
}

// Dial connects to a ws:// observer endpoint and sends the initial SUBSCRIBE.
func Dial(ctx context.Context, wsURL string, center change.BlockPos, chunkRadius int, logger log.Interface) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Log
	}
	c := &Client{conn: conn, log: logger.WithField("module", "observer_client")}
	if err := c.Subscribe(center, chunkRadius); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Subscribe moves the watched area. Not safe for concurrent use with itself.
func (c *Client) Subscribe(center change.BlockPos, chunkRadius int) error {
	b, err := json.Marshal(protocol.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: protocol.Version,
		Center:          [3]int32{center.X, center.Y, center.Z},
		ChunkRadius:     chunkRadius,
	})
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Run feeds frames to rx until the connection ends or ctx is done. A
// malformed frame means the stream can no longer be trusted: the connection
// is closed and the error returned. Records with an unknown kind are skipped.
func (c *Client) Run(ctx context.Context, rx Receiver) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		err = rx.Receive(ctx, msg)
		switch {
		case err == nil:
		case errors.Is(err, change.ErrUnknownKind):
			c.log.WithError(err).Warn("skipping record")
		case errors.Is(err, change.ErrMalformedRecord):
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "malformed record"), time.Now().Add(time.Second))
			_ = c.conn.Close()
			return err
		default:
			return err
		}
	}
}

func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	return c.conn.Close()
}
