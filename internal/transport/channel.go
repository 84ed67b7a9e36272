package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
)

// ErrChannelUnavailable marks a persistent channel that could not be
// opened or that dropped after having been live.
var ErrChannelUnavailable = errors.New("persistent channel unavailable")

// Channel is the persistent bidirectional connection to the backend.
// The reconciler exclusively owns its Channel and closes it on every
// teardown path.
type Channel interface {
	// Send enqueues one query frame.
	Send(ctx context.Context, q QueryPayload) error
	// Receive blocks until the next agent reply frame arrives, the context
	// is cancelled, or the connection drops.
	Receive(ctx context.Context) (*ReplyPayload, error)
	// Close releases the connection.
	Close() error
}

// Dialer opens a Channel. Tests substitute in-memory implementations.
type Dialer func(ctx context.Context, url string) (Channel, error)

// DialWebSocket opens a websocket channel to the backend's /ws endpoint.
func DialWebSocket(ctx context.Context, url string) (Channel, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrChannelUnavailable, url, err)
	}
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Send(ctx context.Context, q QueryPayload) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode query frame: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: write: %v", ErrChannelUnavailable, err)
	}
	return nil
}

func (c *wsChannel) Receive(ctx context.Context) (*ReplyPayload, error) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				return nil, fmt.Errorf("%w: closed by remote: %v", ErrChannelUnavailable, err)
			}
			return nil, fmt.Errorf("%w: read: %v", ErrChannelUnavailable, err)
		}

		var reply ReplyPayload
		if err := json.Unmarshal(data, &reply); err != nil {
			slog.Debug("Discarding malformed channel frame", "error", err)
			continue
		}
		// The backend tags reply frames with type "ai_response". Anything
		// else on the channel is lifecycle chatter.
		if reply.Type != "" && reply.Type != "ai_response" {
			slog.Debug("Ignoring non-reply channel frame", "type", reply.Type)
			continue
		}
		return &reply, nil
	}
}

func (c *wsChannel) Close() error {
	if err := c.conn.Close(websocket.StatusNormalClosure, "client closed"); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}
	return nil
}
