package websocket

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gobwas/ws"

	"github.com/Swind/go-task-port/codec"
	"github.com/Swind/go-task-port/core"
)

// Client sends task batches to a Server and receives result batches.
// Send may be called concurrently with Receive; Receive must not be called
// from more than one goroutine.
type Client struct {
	conn  *frameConn
	codec codec.Codec
}

// Result batches may carry HTTP response bodies, so the client reads more
// than the server accepts.
const clientMaxMessageSize = 16 << 20

// Dial connects to rawURL, asking the server for codec c.
func Dial(ctx context.Context, rawURL string, c codec.Codec) (*Client, error) {
	if c == nil {
		c = codec.JSONCodec{}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("codec", c.Name())
	u.RawQuery = q.Encode()

	conn, br, _, err := ws.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	// br holds frames the server sent right after the handshake
	var src io.Reader
	if br != nil {
		src = br
	}
	return &Client{conn: newFrameConn(conn, src, ws.StateClientSide, clientMaxMessageSize), codec: c}, nil
}

// Send encodes batch and writes it as one message.
func (c *Client) Send(batch core.TaskBatch) error {
	payload, err := c.codec.Marshal(batch)
	if err != nil {
		return err
	}
	op := ws.OpBinary
	if codec.IsText(c.codec) {
		op = ws.OpText
	}
	return c.conn.WriteMessage(op, payload)
}

// Receive blocks until the next result batch arrives or ctx ends. A read
// interrupted by ctx leaves the connection unusable.
func (c *Client) Receive(ctx context.Context) (core.ResultBatch, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, _, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	var batch core.ResultBatch
	if err := c.codec.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode result batch: %w", err)
	}
	return batch, nil
}

// Close sends a normal close frame and closes the connection.
func (c *Client) Close() error {
	return c.conn.Close(ws.StatusNormalClosure, "")
}
