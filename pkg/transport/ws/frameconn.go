package ws

import (
	"context"
	"fmt"

	"devremote/troubleshoot/pkg/transport"

	"github.com/coder/websocket"
)

type frameConn struct {
	c *websocket.Conn
}

// NewFrameConn wraps a websocket connection as a transport.FrameConn.
func NewFrameConn(c *websocket.Conn) transport.FrameConn {
	return &frameConn{c: c}
}

func (f *frameConn) ReadFrame(ctx context.Context) ([]byte, error) {
	typ, p, err := f.c.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("unexpected websocket message type %s", typ)
	}
	return p, nil
}

func (f *frameConn) WriteFrame(ctx context.Context, frame []byte) error {
	return f.c.Write(ctx, websocket.MessageBinary, frame)
}

func (f *frameConn) Close() error {
	return f.c.Close(websocket.StatusNormalClosure, "")
}
