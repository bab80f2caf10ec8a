// Package portfwd implements the port forwarding sub-protocol. The server
// asks the device to open a TCP or UDP connection to a remote host; data is
// then relayed in "forward" messages in both directions until either side
// sends "stop". At most one forwarded connection exists at a time.
package portfwd

import (
	"fmt"
	"sync"

	"devremote/troubleshoot/pkg/handler"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/proto"
)

// MsgType enumerates the port forwarding message types.
type MsgType int

const (
	MsgUnknown MsgType = iota
	MsgNew
	MsgForward
	MsgAck
	MsgStop
	MsgError
)

var msgTypeNames = map[MsgType]string{
	MsgNew:     "new",
	MsgForward: "forward",
	MsgAck:     "ack",
	MsgStop:    "stop",
	MsgError:   proto.MsgTypeError,
}

// ParseMsgType maps a wire message type to its MsgType.
func ParseMsgType(s string) MsgType {
	for t, name := range msgTypeNames {
		if name == s {
			return t
		}
	}
	return MsgUnknown
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Body keys of "new".
const (
	keyRemoteHost = "remote_host"
	keyRemotePort = "remote_port"
	keyProtocol   = "protocol"
)

// Output receives what the remote end sends. It is bound to the connection
// it was handed out for.
type Output interface {
	Forward(p []byte) error
	// Closed reports that the remote end closed the connection.
	Closed()
}

// Conn is an open remote connection.
type Conn interface {
	Send(p []byte) error
	Close() error
}

// Remote is the device capability that opens remote connections.
type Remote interface {
	Connect(host string, port uint16, protocol string, out Output) (Conn, error)
}

// Handler holds the single forwarded connection.
type Handler struct {
	remote Remote
	send   handler.Sender
	mu     sync.Locker
	logger *log.Logger

	sessionID    string
	connectionID string
	conn         Conn // nil while idle
	gen          uint64
}

// New creates a port forwarding handler. mu is the lock its caller holds
// while invoking Handle and the device initiated methods.
func New(remote Remote, send handler.Sender, mu sync.Locker, logger *log.Logger) *Handler {
	return &Handler{
		remote: remote,
		send:   send,
		mu:     mu,
		logger: logger,
	}
}

// Connected reports whether a connection is active.
func (h *Handler) Connected() bool {
	return h.conn != nil
}

// IDs returns the session and connection id of the active connection.
func (h *Handler) IDs() (sessionID, connectionID string) {
	return h.sessionID, h.connectionID
}

// Handle processes one port forwarding message.
func (h *Handler) Handle(m *proto.Message) (*proto.Message, error) {
	switch ParseMsgType(m.MsgType()) {
	case MsgNew:
		return h.handleNew(m)
	case MsgForward:
		return h.handleForward(m)
	case MsgStop:
		return h.handleStop(m)
	case MsgAck:
		return nil, nil
	case MsgError:
		h.handlePeerError(m)
		return nil, nil
	default:
		return nil, proto.Unsupported(m)
	}
}

func (h *Handler) handleNew(m *proto.Message) (*proto.Message, error) {
	if h.Connected() {
		return errorReply(m, fmt.Errorf("new connection: %w", proto.ErrBusy))
	}

	connID := connectionID(m)
	if m.SessionID() == "" || connID == "" {
		return errorReply(m, proto.NewProtocolError(m, "missing session or connection id"))
	}

	h.sessionID, h.connectionID = m.SessionID(), connID

	host, port, protocol, err := parseNew(m)
	if err != nil {
		h.clear()
		return errorReply(m, err)
	}

	h.gen++
	conn, err := h.remote.Connect(host, port, protocol, &output{h: h, gen: h.gen})
	if err != nil {
		h.clear()
		return errorReply(m, proto.NewCapabilityError(fmt.Sprintf("connecting to %s:%d/%s", host, port, protocol), err))
	}
	h.conn = conn
	h.logger.InfoMsg("Forwarding %s:%d/%s (connection %s)\n", host, port, protocol, connID)

	return h.reply(m, MsgNew), nil
}

func (h *Handler) handleForward(m *proto.Message) (*proto.Message, error) {
	if err := h.checkConnection(m); err != nil {
		return nil, err
	}
	if len(m.Body) == 0 {
		return nil, proto.NewProtocolError(m, "missing body")
	}

	if err := h.conn.Send(m.Body); err != nil {
		h.Teardown()
		return errorReply(m, proto.NewCapabilityError("forwarding to remote", err))
	}
	return h.reply(m, MsgAck), nil
}

func (h *Handler) handleStop(m *proto.Message) (*proto.Message, error) {
	if !h.Connected() {
		h.logger.WarnMsg("Stop for connection %q, but none is active\n", connectionID(m))
		return nil, nil
	}
	if err := h.checkConnection(m); err != nil {
		return nil, err
	}

	reply := h.reply(m, MsgStop)
	err := h.conn.Close()
	h.logger.InfoMsg("Connection %s stopped\n", h.connectionID)
	h.clear()
	if err != nil {
		return reply, proto.NewCapabilityError("closing remote connection", err)
	}
	return reply, nil
}

func (h *Handler) handlePeerError(m *proto.Message) {
	if eb, err := proto.DecodeErrorBody(m.Body); err == nil {
		h.logger.WarnMsg("Peer reported port forwarding error: %s\n", eb.Err)
	}
	if !h.Connected() || h.checkConnection(m) != nil {
		return
	}
	if err := h.conn.Close(); err != nil {
		h.logger.ErrorMsg("Closing remote connection: %s\n", err)
	}
	h.clear()
}

func (h *Handler) checkConnection(m *proto.Message) error {
	if !h.Connected() {
		return proto.NewProtocolError(m, "no active connection")
	}
	if m.SessionID() != h.sessionID || connectionID(m) != h.connectionID {
		return proto.NewProtocolError(m, "ids %q/%q do not match active connection", m.SessionID(), connectionID(m))
	}
	return nil
}

func (h *Handler) reply(m *proto.Message, t MsgType) *proto.Message {
	reply := proto.NewReply(m, t.String())
	reply.Header.Properties = &proto.Properties{ConnectionID: proto.String(h.connectionID)}
	return reply
}

// Forward sends data received from the remote end to the peer.
func (h *Handler) Forward(p []byte) error {
	if !h.Connected() {
		return proto.ErrNoSession
	}

	m := proto.New(proto.ProtoPortForward, MsgForward.String(), h.sessionID)
	m.Header.Properties = &proto.Properties{ConnectionID: proto.String(h.connectionID)}
	m.Body = p
	return h.send.Send(m)
}

// Teardown closes the active connection and tells the peer.
func (h *Handler) Teardown() {
	if !h.Connected() {
		return
	}

	if err := h.conn.Close(); err != nil {
		h.logger.ErrorMsg("Closing remote connection: %s\n", err)
	}

	m := proto.New(proto.ProtoPortForward, MsgStop.String(), h.sessionID)
	m.Header.Properties = &proto.Properties{ConnectionID: proto.String(h.connectionID)}
	if err := h.send.Send(m); err != nil {
		h.logger.VerboseMsg("Sending stop for connection %s: %s", h.connectionID, err)
	}

	h.logger.InfoMsg("Connection %s closed\n", h.connectionID)
	h.clear()
}

func (h *Handler) clear() {
	h.sessionID = ""
	h.connectionID = ""
	h.conn = nil
}

func connectionID(m *proto.Message) string {
	if p := m.Props(); p != nil && p.ConnectionID != nil {
		return *p.ConnectionID
	}
	return ""
}

func parseNew(m *proto.Message) (host string, port uint16, protocol string, err error) {
	body, err := proto.DecodeMap(m.Body)
	if err != nil {
		return "", 0, "", proto.NewProtocolError(m, "invalid body: %s", err)
	}

	host, ok := body.String(keyRemoteHost)
	if !ok || host == "" {
		return "", 0, "", proto.NewProtocolError(m, "missing %s", keyRemoteHost)
	}

	p, ok := body.Uint(keyRemotePort)
	if !ok || p == 0 || p > 0xFFFF {
		return "", 0, "", proto.NewProtocolError(m, "missing or invalid %s", keyRemotePort)
	}

	protocol, ok = body.String(keyProtocol)
	if !ok || (protocol != "tcp" && protocol != "udp") {
		return "", 0, "", proto.NewProtocolError(m, "missing or invalid %s", keyProtocol)
	}

	return host, uint16(p), protocol, nil
}

func errorReply(m *proto.Message, err error) (*proto.Message, error) {
	reply, encErr := proto.NewErrorReply(m, err, true)
	if encErr != nil {
		return nil, proto.NewResourceError("encoding error reply", encErr)
	}
	return reply, err
}

type output struct {
	h   *Handler
	gen uint64
}

func (o *output) current() bool {
	return o.h.Connected() && o.h.gen == o.gen
}

func (o *output) Forward(p []byte) error {
	o.h.mu.Lock()
	defer o.h.mu.Unlock()

	if !o.current() {
		return proto.ErrNoSession
	}
	return o.h.Forward(p)
}

func (o *output) Closed() {
	o.h.mu.Lock()
	defer o.h.mu.Unlock()

	if o.current() {
		o.h.Teardown()
	}
}
