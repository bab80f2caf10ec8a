// Package proto implements the wire format of the remote troubleshoot
// protocol. Every frame is a msgpack map with an optional header ("hdr") and
// an optional binary body ("body"). The header names the sub-protocol that
// owns the message, a sub-protocol specific message type, the session id and
// a set of optional typed properties.
//
// Integer width matters to the peer: integers are written in their most
// compact form except for the offset property, which is always a fixed
// 64-bit signed integer.
package proto

import "fmt"

// ProtoType selects the sub-protocol a message is routed to.
type ProtoType uint16

const (
	// ProtoInvalid signifies an invalid (uninitialized) message.
	ProtoInvalid ProtoType = 0
	// ProtoShell carries remote terminal session data.
	ProtoShell ProtoType = 1
	// ProtoFileTransfer carries file upload, download and stat messages.
	ProtoFileTransfer ProtoType = 2
	// ProtoPortForward carries forwarded TCP/UDP connection data.
	ProtoPortForward ProtoType = 3
	// ProtoClientControl asks the device client to check for updates or
	// send its inventory.
	ProtoClientControl ProtoType = 4
	// ProtoControl is the connection level handshake.
	ProtoControl ProtoType = 0xFFFF
)

func (p ProtoType) String() string {
	switch p {
	case ProtoShell:
		return "shell"
	case ProtoFileTransfer:
		return "file_transfer"
	case ProtoPortForward:
		return "port_forward"
	case ProtoClientControl:
		return "client_control"
	case ProtoControl:
		return "control"
	case ProtoInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(p))
	}
}

// Status is carried in the status property of replies.
type Status int

const (
	StatusNormal Status = iota
	StatusError
	StatusControl
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusError:
		return "error"
	case StatusControl:
		return "control"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Wire keys.
const (
	keyHeader = "hdr"
	keyBody   = "body"

	keyProto      = "proto"
	keyMsgType    = "typ"
	keySessionID  = "sid"
	keyProperties = "props"

	keyTerminalWidth  = "terminal_width"
	keyTerminalHeight = "terminal_height"
	keyUserID         = "user_id"
	keyTimeout        = "timeout"
	keyStatus         = "status"
	keyOffset         = "offset"
	keyConnectionID   = "connection_id"
)

// Properties are the optional typed header properties. A nil field is
// absent on the wire; a non-nil field is encoded even when it holds the zero
// value.
type Properties struct {
	TerminalWidth  *uint16
	TerminalHeight *uint16
	UserID         *string
	Timeout        *uint32 // seconds
	Status         *Status
	Offset         *int64
	ConnectionID   *string
}

// Empty reports whether no property is present.
func (p *Properties) Empty() bool {
	return p == nil ||
		(p.TerminalWidth == nil && p.TerminalHeight == nil && p.UserID == nil &&
			p.Timeout == nil && p.Status == nil && p.Offset == nil && p.ConnectionID == nil)
}

// Header describes to which sub-protocol and session a message belongs.
type Header struct {
	Proto      ProtoType
	MsgType    string
	SessionID  string // empty means absent
	Properties *Properties
}

// Props returns the header properties, allocating them when absent.
func (h *Header) Props() *Properties {
	if h.Properties == nil {
		h.Properties = &Properties{}
	}
	return h.Properties
}

// Message is the unit exchanged on the wire.
type Message struct {
	Header *Header
	Body   []byte // nil or empty means absent
}

// Proto returns the message's proto type, or ProtoInvalid without header.
func (m *Message) Proto() ProtoType {
	if m == nil || m.Header == nil {
		return ProtoInvalid
	}
	return m.Header.Proto
}

// MsgType returns the message type, or "" without header.
func (m *Message) MsgType() string {
	if m == nil || m.Header == nil {
		return ""
	}
	return m.Header.MsgType
}

// SessionID returns the session id, or "" without header.
func (m *Message) SessionID() string {
	if m == nil || m.Header == nil {
		return ""
	}
	return m.Header.SessionID
}

// Props returns the properties of the message or nil.
func (m *Message) Props() *Properties {
	if m == nil || m.Header == nil {
		return nil
	}
	return m.Header.Properties
}

// NewReply creates a message of type msgType answering req. The proto type
// and session id are copied from req so the peer can correlate the reply.
func NewReply(req *Message, msgType string) *Message {
	return &Message{
		Header: &Header{
			Proto:     req.Proto(),
			MsgType:   msgType,
			SessionID: req.SessionID(),
		},
	}
}

// New creates a message for a device initiated exchange.
func New(proto ProtoType, msgType, sessionID string) *Message {
	return &Message{
		Header: &Header{
			Proto:     proto,
			MsgType:   msgType,
			SessionID: sessionID,
		},
	}
}

// Uint16 returns a pointer to v, for use in Properties literals.
func Uint16(v uint16) *uint16 { return &v }

// Uint32 returns a pointer to v.
func Uint32(v uint32) *uint32 { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// StatusPtr returns a pointer to v.
func StatusPtr(v Status) *Status { return &v }
