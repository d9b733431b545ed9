package websocket

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// DefaultMaxMessageSize caps one inbound data message.
const DefaultMaxMessageSize = 1 << 20

var (
	// ErrClosed is returned once the peer sent a close frame.
	ErrClosed = errors.New("websocket: connection closed by peer")

	// ErrMessageTooLarge is returned when a data message exceeds the read limit.
	ErrMessageTooLarge = errors.New("websocket: message too large")
)

// frameConn reads whole data messages and writes single-frame messages over
// a hijacked connection. Reads must come from one goroutine; writes may be
// concurrent.
type frameConn struct {
	conn    net.Conn
	state   ws.State
	rd      *wsutil.Reader
	maxSize int64

	wmu       sync.Mutex
	closeOnce sync.Once
}

// newFrameConn wraps conn. A nil src reads from conn; a non-positive maxSize
// means DefaultMaxMessageSize.
func newFrameConn(conn net.Conn, src io.Reader, state ws.State, maxSize int64) *frameConn {
	if src == nil {
		src = conn
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	c := &frameConn{conn: conn, state: state, maxSize: maxSize}
	c.rd = &wsutil.Reader{
		Source:    src,
		State:     state,
		CheckUTF8: true,
		OnIntermediate: func(hdr ws.Header, r io.Reader) error {
			return c.handleControl(hdr, r)
		},
	}
	return c
}

// ReadMessage returns the next text or binary message. Control frames are
// answered in place. A message longer than the read limit fails with
// ErrMessageTooLarge and the connection must be closed.
func (c *frameConn) ReadMessage() ([]byte, ws.OpCode, error) {
	for {
		hdr, err := c.rd.NextFrame()
		if err != nil {
			return nil, 0, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.rd); err != nil {
				return nil, 0, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := c.rd.Discard(); err != nil {
				return nil, 0, err
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(c.rd, c.maxSize+1))
		if err != nil {
			return nil, 0, err
		}
		if int64(len(data)) > c.maxSize {
			return nil, 0, ErrMessageTooLarge
		}
		return data, hdr.OpCode, nil
	}
}

func (c *frameConn) handleControl(hdr ws.Header, r io.Reader) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	switch hdr.OpCode {
	case ws.OpPing:
		return c.writeFrame(ws.NewPongFrame(payload))
	case ws.OpClose:
		_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
		return ErrClosed
	}
	return nil
}

// WriteMessage sends payload as one final frame.
func (c *frameConn) WriteMessage(op ws.OpCode, payload []byte) error {
	return c.writeFrame(ws.NewFrame(op, true, payload))
}

func (c *frameConn) writeFrame(f ws.Frame) error {
	if c.state.ClientSide() {
		f = ws.MaskFrameInPlace(f)
	}
	bts, err := ws.CompileFrame(f)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.conn.Write(bts)
	return err
}

// Close sends a close frame with status and closes the connection.
func (c *frameConn) Close(status ws.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(status, reason)))
		err = c.conn.Close()
	})
	return err
}
