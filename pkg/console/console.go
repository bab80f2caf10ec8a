// Package console is the operator side of the protocol. A Peer drives one
// connected device: it performs the control handshake and then runs a
// remote shell, a file download, a stat or a client control request.
package console

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"devremote/troubleshoot/pkg/handler/control"
	"devremote/troubleshoot/pkg/handler/shell"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/proto"
	"devremote/troubleshoot/pkg/transport"
)

// ErrDisconnected is returned once the device connection is gone.
var ErrDisconnected = errors.New("device disconnected")

// Peer is the console end of a device connection.
type Peer struct {
	conn   transport.Conn
	logger *log.Logger

	inbox  chan *proto.Message
	closed chan struct{} // read loop ended
	done   chan struct{} // Close called

	closeOnce sync.Once
}

// New starts reading messages from fc.
func New(fc transport.FrameConn, logger *log.Logger) *Peer {
	p := &Peer{
		logger: logger,
		inbox:  make(chan *proto.Message, 64),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.conn = transport.NewConn(fc, transport.Callbacks{
		OnData:  p.onData,
		OnClose: p.onClose,
	})
	return p
}

func (p *Peer) onData(frame []byte) {
	m, err := proto.Decode(frame)
	if err != nil {
		p.logger.WarnMsg("Dropping frame from device: %s\n", err)
		return
	}
	if m.Header == nil {
		p.logger.WarnMsg("Dropping message without header\n")
		return
	}

	select {
	case p.inbox <- m:
	case <-p.done:
	}
}

func (p *Peer) onClose(err error) {
	p.logger.VerboseMsg("Device connection closed: %s", err)
	close(p.closed)
}

// Send encodes and sends m.
func (p *Peer) Send(ctx context.Context, m *proto.Message) error {
	frame, err := proto.Encode(m)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", m.Proto(), m.MsgType(), err)
	}
	if err := p.conn.Send(ctx, frame); err != nil {
		return fmt.Errorf("sending %s/%s: %w", m.Proto(), m.MsgType(), err)
	}
	return nil
}

// Recv returns the next message from the device. Keep-alive pings are
// answered and not returned. Messages received before the connection closed
// are still delivered.
func (p *Peer) Recv(ctx context.Context) (*proto.Message, error) {
	for {
		var m *proto.Message
		select {
		case m = <-p.inbox:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.closed:
			select {
			case m = <-p.inbox:
			default:
				return nil, ErrDisconnected
			}
		}

		if p.isKeepAlive(m) {
			if err := p.Send(ctx, proto.NewReply(m, shell.MsgPong.String())); err != nil {
				p.logger.VerboseMsg("Answering keep-alive: %s", err)
			}
			continue
		}
		return m, nil
	}
}

func (p *Peer) isKeepAlive(m *proto.Message) bool {
	switch m.Proto() {
	case proto.ProtoShell:
		return shell.ParseMsgType(m.MsgType()) == shell.MsgPing
	case proto.ProtoControl:
		return control.ParseMsgType(m.MsgType()) == control.MsgPing
	}
	return false
}

// recvReply waits for the next message of protocol pt and session sid.
// Other messages are logged and skipped.
func (p *Peer) recvReply(ctx context.Context, pt proto.ProtoType, sid string) (*proto.Message, error) {
	for {
		m, err := p.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if m.Proto() == pt && m.SessionID() == sid {
			return m, nil
		}
		p.logger.VerboseMsg("Ignoring %s/%s for session %q", m.Proto(), m.MsgType(), m.SessionID())
	}
}

// Handshake opens the control session and returns what the device accepts.
func (p *Peer) Handshake(ctx context.Context) (control.Accept, error) {
	if err := p.Send(ctx, proto.New(proto.ProtoControl, control.MsgOpen.String(), "")); err != nil {
		return control.Accept{}, err
	}

	m, err := p.recvReply(ctx, proto.ProtoControl, "")
	if err != nil {
		return control.Accept{}, fmt.Errorf("waiting for accept: %w", err)
	}

	switch control.ParseMsgType(m.MsgType()) {
	case control.MsgAccept:
		acc, err := control.DecodeAccept(m.Body)
		if err != nil {
			return control.Accept{}, fmt.Errorf("decoding accept: %w", err)
		}
		p.logger.VerboseMsg("Device speaks version %d, protocols %v", acc.Version, acc.Protocols)
		return acc, nil
	case control.MsgError:
		return control.Accept{}, remoteError(m)
	default:
		return control.Accept{}, fmt.Errorf("unexpected control message %q", m.MsgType())
	}
}

// Close closes the connection.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.conn.Close()
	})
	return err
}

// Supports reports whether pt is in the accepted protocols.
func Supports(acc control.Accept, pt proto.ProtoType) bool {
	for _, p := range acc.Protocols {
		if p == pt {
			return true
		}
	}
	return false
}

// remoteError converts an error message from the device into an error.
func remoteError(m *proto.Message) error {
	eb, err := proto.DecodeErrorBody(m.Body)
	if err != nil || eb.Err == "" {
		return fmt.Errorf("device reported an error on %s", m.Proto())
	}
	return fmt.Errorf("device: %s", eb.Err)
}

// statusError converts a reply carrying status error into an error, taking
// the error text from the body.
func statusError(m *proto.Message) error {
	p := m.Props()
	if p == nil || p.Status == nil || *p.Status != proto.StatusError {
		return nil
	}
	if len(m.Body) > 0 {
		return fmt.Errorf("device: %s", m.Body)
	}
	return fmt.Errorf("device: %s failed", m.MsgType())
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %s", err))
	}
	return hex.EncodeToString(b)
}
