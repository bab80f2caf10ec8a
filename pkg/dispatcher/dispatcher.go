// Package dispatcher routes inbound frames to the sub-protocol handlers and
// owns the transport connection. It connects on demand from the periodic
// health check, sends replies and device initiated messages, and tears the
// sessions down when the connection is lost or the agent deactivates.
//
// All handler state is guarded by a single mutex: frames, health checks,
// deactivation and output from the device capabilities are serialized.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/handler"
	"devremote/troubleshoot/pkg/handler/clientctl"
	"devremote/troubleshoot/pkg/handler/control"
	"devremote/troubleshoot/pkg/handler/filetransfer"
	"devremote/troubleshoot/pkg/handler/portfwd"
	"devremote/troubleshoot/pkg/handler/shell"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/proto"
	"devremote/troubleshoot/pkg/transport"
)

// ErrFeatureDisabled is returned for device output of a disabled feature.
var ErrFeatureDisabled = errors.New("feature disabled")

// Config configures a Dispatcher.
type Config struct {
	Features       config.Features
	HealthInterval time.Duration
	ChunkSize      int
	BatchSize      int
	// Path is passed to the dialer, for websocket transports.
	Path string
	// SendTimeout bounds a single frame write. Zero means no bound.
	SendTimeout time.Duration
}

// Capabilities are the device side implementations behind the optional
// sub-protocols. Only those of enabled features are required.
type Capabilities struct {
	Shell  shell.Shell
	Files  filetransfer.Files
	Remote portfwd.Remote
}

// Client is the outer device client.
type Client interface {
	clientctl.Client
	// NetworkAccess is called before connecting.
	NetworkAccess(ctx context.Context) error
	// AuthToken returns the token presented to the server.
	AuthToken(ctx context.Context) (string, error)
}

// Dispatcher is the protocol engine of the device.
type Dispatcher struct {
	mu sync.Mutex

	cfg    Config
	client Client
	dialer transport.Dialer
	logger *log.Logger

	conn    transport.Conn
	gen     uint64 // identifies conn in its OnClose callback
	sendErr error  // first reply send failure since the last health check

	control   *control.Handler
	clientctl *clientctl.Handler
	shell     *shell.Handler
	files     *filetransfer.Handler
	portfwd   *portfwd.Handler
}

// New creates a dispatcher.
func New(cfg Config, caps Capabilities, client Client, dialer transport.Dialer, logger *log.Logger) (*Dispatcher, error) {
	if client == nil || dialer == nil {
		return nil, errors.New("client and dialer are required")
	}

	d := &Dispatcher{
		cfg:    cfg,
		client: client,
		dialer: dialer,
		logger: logger,
	}
	send := handler.SenderFunc(d.send)

	d.control = control.New(cfg.Features)
	d.clientctl = clientctl.New(client)

	if cfg.Features.Shell {
		if caps.Shell == nil {
			return nil, errors.New("shell enabled without shell capability")
		}
		d.shell = shell.New(caps.Shell, send, &d.mu, logger)
	}
	if cfg.Features.FileTransfer {
		if caps.Files == nil {
			return nil, errors.New("file transfer enabled without filesystem capability")
		}
		d.files = filetransfer.New(caps.Files, send, filetransfer.Config{
			ChunkSize: cfg.ChunkSize,
			BatchSize: cfg.BatchSize,
		}, logger)
	}
	if cfg.Features.PortForward {
		if caps.Remote == nil {
			return nil, errors.New("port forwarding enabled without remote capability")
		}
		d.portfwd = portfwd.New(caps.Remote, send, &d.mu, logger)
	}

	return d, nil
}

// OnBytes handles one inbound frame. Frames that cannot be decoded, that
// have no header or that belong to an unknown or disabled sub-protocol are
// dropped without reply.
func (d *Dispatcher) OnBytes(frame []byte) {
	m, err := proto.Decode(frame)
	if err != nil {
		d.logger.WarnMsg("Dropping frame: %s\n", err)
		return
	}
	if m.Header == nil {
		d.logger.WarnMsg("Dropping message without header\n")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.route(m.Proto())
	if h == nil {
		d.logger.WarnMsg("Dropping %q message for unsupported protocol %s\n", m.MsgType(), m.Proto())
		return
	}

	d.logger.VerboseMsg("Received %s/%q (sid %q)", m.Proto(), m.MsgType(), m.SessionID())

	reply, err := h.Handle(m)
	if reply != nil {
		if sendErr := d.send(reply); sendErr != nil {
			d.logger.ErrorMsg("Sending %s/%q reply: %s\n", reply.Proto(), reply.MsgType(), sendErr)
			if d.sendErr == nil {
				d.sendErr = sendErr
			}
		}
	}
	if err != nil {
		d.logHandlerError(m, err)
	}
}

func (d *Dispatcher) route(p proto.ProtoType) handler.Handler {
	switch p {
	case proto.ProtoControl:
		return d.control
	case proto.ProtoClientControl:
		return d.clientctl
	case proto.ProtoShell:
		if d.shell != nil {
			return d.shell
		}
	case proto.ProtoFileTransfer:
		if d.files != nil {
			return d.files
		}
	case proto.ProtoPortForward:
		if d.portfwd != nil {
			return d.portfwd
		}
	}
	return nil
}

func (d *Dispatcher) logHandlerError(m *proto.Message, err error) {
	var pe *proto.ProtocolError
	if errors.As(err, &pe) || errors.Is(err, proto.ErrMalformed) {
		d.logger.WarnMsg("%s\n", err)
		return
	}
	d.logger.ErrorMsg("Handling %s/%q: %s\n", m.Proto(), m.MsgType(), err)
}

// send encodes m and writes it to the connection. The caller holds d.mu.
func (d *Dispatcher) send(m *proto.Message) error {
	if d.conn == nil {
		return proto.ErrNotConnected
	}

	frame, err := proto.Encode(m)
	if err != nil {
		return proto.NewResourceError("encoding message", err)
	}

	ctx := context.Background()
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	if err := d.conn.Send(ctx, frame); err != nil {
		return fmt.Errorf("sending %s/%q: %w", m.Proto(), m.MsgType(), err)
	}
	return nil
}

// HealthCheck is called periodically. When connected it sends the shell
// keep-alive, advertising twice the health interval as timeout, and reports
// reply send failures since the last call. Otherwise it requests network
// access and connects.
func (d *Dispatcher) HealthCheck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return d.connect(ctx)
	}

	sendErr := d.sendErr
	d.sendErr = nil

	if d.shell != nil && d.shell.Open() {
		timeout := uint32(2 * d.cfg.HealthInterval / time.Second)
		if err := d.shell.Ping(timeout); err != nil {
			return fmt.Errorf("sending shell keep-alive: %w", err)
		}
	}
	return sendErr
}

func (d *Dispatcher) connect(ctx context.Context) error {
	if err := d.client.NetworkAccess(ctx); err != nil {
		return fmt.Errorf("requesting network access: %w", err)
	}

	token, err := d.client.AuthToken(ctx)
	if err != nil {
		return fmt.Errorf("getting auth token: %w", err)
	}

	d.gen++
	gen := d.gen
	conn, err := d.dialer.Dial(ctx, transport.DialRequest{Token: token, Path: d.cfg.Path}, transport.Callbacks{
		OnData:  d.OnBytes,
		OnClose: func(err error) { d.onClose(gen, err) },
	})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	d.conn = conn
	d.sendErr = nil
	d.logger.InfoMsg("Connected\n")
	return nil
}

func (d *Dispatcher) onClose(gen uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen || d.conn == nil {
		return
	}

	d.logger.WarnMsg("Connection lost: %s\n", err)
	_ = d.conn.Close()
	d.conn = nil
	d.teardown()
}

// teardown ends every session. The caller holds d.mu.
func (d *Dispatcher) teardown() {
	if d.shell != nil {
		d.shell.Teardown()
	}
	if d.files != nil {
		d.files.Teardown()
	}
	if d.portfwd != nil {
		d.portfwd.Teardown()
	}
}

// Deactivate ends all sessions, telling the peer where the protocol allows
// it, and disconnects.
func (d *Dispatcher) Deactivate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.teardown()

	if d.conn == nil {
		return nil
	}

	conn := d.conn
	d.conn = nil
	d.gen++
	if err := conn.Close(); err != nil {
		return fmt.Errorf("disconnecting: %w", err)
	}
	d.logger.InfoMsg("Disconnected\n")
	return nil
}

// ShellPrint sends output of the open shell session to the peer.
func (d *Dispatcher) ShellPrint(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shell == nil {
		return fmt.Errorf("shell: %w", ErrFeatureDisabled)
	}
	return d.shell.Print(p)
}

// PortForwardSend sends data of the active forwarded connection to the peer.
func (d *Dispatcher) PortForwardSend(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.portfwd == nil {
		return fmt.Errorf("port forwarding: %w", ErrFeatureDisabled)
	}
	return d.portfwd.Forward(p)
}

// Connected reports whether a transport connection is held.
func (d *Dispatcher) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.conn != nil
}
