// Package transport provides the duplex frame connection between the device
// agent and the server. Each transport (ws, wss, tcp, udp) implements two
// pieces:
//
//   - a Dialer used by the device: it opens an authenticated connection and
//     delivers every received frame to a callback on its own goroutine
//   - a ListenAndServe function used by the console: it accepts a device,
//     reads the token it presented and hands a FrameConn to a Handler
//
// WebSocket transports carry one frame per binary message. Stream transports
// (tcp, and udp via KCP) prefix each frame with its 4-byte big-endian length
// and send the token as the first frame.
package transport

import (
	"context"
	"sync"
)

// MaxFrameSize bounds the size of a single frame.
const MaxFrameSize = 1 << 20

// DialRequest holds what the device presents when connecting.
type DialRequest struct {
	Token string
	Path  string // websocket request path, ignored by stream transports
}

// Callbacks receive the events of an open connection. OnData is called
// sequentially from a single goroutine. OnClose is called once when the
// connection fails or is closed.
type Callbacks struct {
	OnData  func(frame []byte)
	OnClose func(err error)
}

// Dialer opens device side connections.
type Dialer interface {
	Dial(ctx context.Context, req DialRequest, cb Callbacks) (Conn, error)
}

// Conn is an open device side connection.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// FrameConn is a raw bidirectional frame stream.
type FrameConn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}

// Handler processes one accepted device connection. token is the credential
// the device presented. The connection is closed after the handler returns.
type Handler func(ctx context.Context, fc FrameConn, token string) error

// conn turns a FrameConn into a callback driven Conn.
type conn struct {
	fc     FrameConn
	cancel context.CancelFunc

	wmu       sync.Mutex
	closeOnce sync.Once
}

// NewConn starts a read loop on fc that delivers frames to cb until fc fails
// or the returned Conn is closed. Close does not wait for the read loop, so
// it may be called while holding a lock the callbacks need.
func NewConn(fc FrameConn, cb Callbacks) Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{fc: fc, cancel: cancel}

	go c.readLoop(ctx, cb)

	return c
}

func (c *conn) readLoop(ctx context.Context, cb Callbacks) {
	for {
		frame, err := c.fc.ReadFrame(ctx)
		if err != nil {
			if cb.OnClose != nil {
				cb.OnClose(err)
			}
			return
		}
		if cb.OnData != nil {
			cb.OnData(frame)
		}
	}
}

// Send writes one frame. Concurrent sends are serialized.
func (c *conn) Send(ctx context.Context, frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	return c.fc.WriteFrame(ctx, frame)
}

// Close stops the read loop and closes the underlying connection.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.fc.Close()
	})
	return err
}
