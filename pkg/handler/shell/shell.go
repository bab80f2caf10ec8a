// Package shell implements the remote terminal sub-protocol. At most one
// shell session exists at a time; it is opened by the server with "new",
// fed with "shell" messages and closed with "stop" by either side.
package shell

import (
	"sync"

	"devremote/troubleshoot/pkg/handler"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/proto"
)

// MsgType enumerates the shell message types.
type MsgType int

const (
	MsgUnknown MsgType = iota
	MsgNew
	MsgResize
	MsgShell
	MsgStop
	MsgPing
	MsgPong
)

var msgTypeNames = map[MsgType]string{
	MsgNew:    "new",
	MsgResize: "resize",
	MsgShell:  "shell",
	MsgStop:   "stop",
	MsgPing:   "ping",
	MsgPong:   "pong",
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

// Output receives what the shell produces. It is bound to the session it
// was handed out for and rejects calls once that session is gone.
type Output interface {
	// Print sends shell output to the peer.
	Print(p []byte) error
	// Closed reports that the shell exited on its own.
	Closed()
}

// Shell is the device capability behind a session.
type Shell interface {
	Open(width, height uint16, out Output) error
	Resize(width, height uint16) error
	Write(p []byte) error
	Close() error
}

// Handler holds the single shell session.
type Handler struct {
	shell  Shell
	send   handler.Sender
	mu     sync.Locker
	logger *log.Logger

	sessionID string // empty while closed
	gen       uint64 // incremented per opened session
}

// New creates a shell handler. mu is the lock its caller holds while
// invoking Handle and the device initiated methods; Output implementations
// acquire it before touching the session.
func New(shell Shell, send handler.Sender, mu sync.Locker, logger *log.Logger) *Handler {
	return &Handler{
		shell:  shell,
		send:   send,
		mu:     mu,
		logger: logger,
	}
}

// Open reports whether a session is open.
func (h *Handler) Open() bool {
	return h.sessionID != ""
}

// SessionID returns the id of the open session or "".
func (h *Handler) SessionID() string {
	return h.sessionID
}

// Handle processes one shell message.
func (h *Handler) Handle(m *proto.Message) (*proto.Message, error) {
	switch t := ParseMsgType(m.MsgType()); t {
	case MsgNew:
		return h.handleNew(m)
	case MsgResize:
		return nil, h.handleResize(m)
	case MsgShell:
		return nil, h.handleShell(m)
	case MsgStop:
		return h.handleStop(m)
	case MsgPing:
		if err := h.checkSession(m); err != nil {
			return nil, err
		}
		return proto.NewReply(m, MsgPong.String()), nil
	case MsgPong:
		return nil, nil
	default:
		return nil, proto.Unsupported(m)
	}
}

func (h *Handler) handleNew(m *proto.Message) (*proto.Message, error) {
	if h.Open() {
		h.logger.WarnMsg("Shell session %q already open, ignoring new session %q\n", h.sessionID, m.SessionID())
		return nil, nil
	}
	if m.SessionID() == "" {
		return nil, proto.NewProtocolError(m, "missing session id")
	}

	var width, height uint16
	if p := m.Props(); p != nil {
		if p.TerminalWidth != nil {
			width = *p.TerminalWidth
		}
		if p.TerminalHeight != nil {
			height = *p.TerminalHeight
		}
	}

	h.sessionID = m.SessionID()
	h.gen++
	var err error
	if openErr := h.shell.Open(width, height, &output{h: h, gen: h.gen}); openErr != nil {
		h.sessionID = ""
		err = proto.NewCapabilityError("opening shell", openErr)
	} else {
		h.logger.InfoMsg("Shell session %q opened (%dx%d)\n", m.SessionID(), width, height)
	}

	reply := proto.NewReply(m, MsgNew.String())
	reply.Header.Props().Status = proto.StatusPtr(handler.Status(err))
	if err != nil {
		reply.Body = []byte(err.Error())
	}
	return reply, err
}

func (h *Handler) handleResize(m *proto.Message) error {
	if err := h.checkSession(m); err != nil {
		return err
	}

	p := m.Props()
	if p == nil || p.TerminalWidth == nil || p.TerminalHeight == nil {
		return proto.NewProtocolError(m, "resize requires terminal width and height")
	}

	if err := h.shell.Resize(*p.TerminalWidth, *p.TerminalHeight); err != nil {
		return proto.NewCapabilityError("resizing shell", err)
	}
	return nil
}

func (h *Handler) handleShell(m *proto.Message) error {
	if err := h.checkSession(m); err != nil {
		return err
	}
	if len(m.Body) == 0 {
		return proto.NewProtocolError(m, "missing body")
	}

	if err := h.shell.Write(m.Body); err != nil {
		h.Teardown()
		return proto.NewCapabilityError("writing to shell", err)
	}
	return nil
}

func (h *Handler) handleStop(m *proto.Message) (*proto.Message, error) {
	if !h.Open() {
		h.logger.WarnMsg("Stop for shell session %q, but no session is open\n", m.SessionID())
		return nil, nil
	}
	if err := h.checkSession(m); err != nil {
		return nil, err
	}

	var err error
	if closeErr := h.shell.Close(); closeErr != nil {
		err = proto.NewCapabilityError("closing shell", closeErr)
	}
	h.logger.InfoMsg("Shell session %q stopped\n", h.sessionID)
	h.sessionID = ""

	reply := proto.NewReply(m, MsgStop.String())
	reply.Header.Props().Status = proto.StatusPtr(handler.Status(err))
	return reply, err
}

func (h *Handler) checkSession(m *proto.Message) error {
	if !h.Open() {
		return proto.NewProtocolError(m, "no shell session open")
	}
	if m.SessionID() != h.sessionID {
		return proto.NewProtocolError(m, "session id %q does not match open session", m.SessionID())
	}
	return nil
}

// Print sends device output of the open session to the peer.
func (h *Handler) Print(p []byte) error {
	if !h.Open() {
		return proto.ErrNoSession
	}

	m := proto.New(proto.ProtoShell, MsgShell.String(), h.sessionID)
	m.Body = p
	return h.send.Send(m)
}

// Ping sends a keep-alive for the open session, advertising timeout
// seconds. It does nothing while no session is open.
func (h *Handler) Ping(timeout uint32) error {
	if !h.Open() {
		return nil
	}

	m := proto.New(proto.ProtoShell, MsgPing.String(), h.sessionID)
	m.Header.Properties = &proto.Properties{
		Status:  proto.StatusPtr(proto.StatusControl),
		Timeout: proto.Uint32(timeout),
	}
	return h.send.Send(m)
}

// Teardown tells the peer the session ended, then closes the shell.
func (h *Handler) Teardown() {
	if !h.Open() {
		return
	}

	m := proto.New(proto.ProtoShell, MsgStop.String(), h.sessionID)
	m.Header.Properties = &proto.Properties{Status: proto.StatusPtr(proto.StatusError)}
	if err := h.send.Send(m); err != nil {
		h.logger.VerboseMsg("Sending stop for shell session %q: %s", h.sessionID, err)
	}

	if err := h.shell.Close(); err != nil {
		h.logger.ErrorMsg("Closing shell: %s\n", err)
	}
	h.logger.InfoMsg("Shell session %q closed\n", h.sessionID)
	h.sessionID = ""
}

type output struct {
	h   *Handler
	gen uint64
}

func (o *output) current() bool {
	return o.h.Open() && o.h.gen == o.gen
}

func (o *output) Print(p []byte) error {
	o.h.mu.Lock()
	defer o.h.mu.Unlock()

	if !o.current() {
		return proto.ErrNoSession
	}
	return o.h.Print(p)
}

func (o *output) Closed() {
	o.h.mu.Lock()
	defer o.h.mu.Unlock()

	if o.current() {
		o.h.Teardown()
	}
}
