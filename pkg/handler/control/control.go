// Package control implements the connection level control sub-protocol:
// liveness pings and the open/accept handshake in which the device announces
// the sub-protocols it supports.
package control

import (
	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/proto"
)

// Version is announced in the accept body.
const Version = 1

// Accept body keys.
const (
	keyVersion   = "version"
	keyProtocols = "protocols"
)

// MsgType enumerates the control message types.
type MsgType int

const (
	MsgUnknown MsgType = iota
	MsgPing
	MsgPong
	MsgOpen
	MsgAccept
	MsgClose
	MsgError
)

var msgTypeNames = map[MsgType]string{
	MsgPing:   "ping",
	MsgPong:   "pong",
	MsgOpen:   "open",
	MsgAccept: "accept",
	MsgClose:  "close",
	MsgError:  "error",
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

// Handler answers control messages. It is stateless.
type Handler struct {
	protocols []proto.ProtoType
}

// New creates a control handler announcing the enabled features.
func New(features config.Features) *Handler {
	return &Handler{protocols: Protocols(features)}
}

// Protocols lists the sub-protocols announced for features: the enabled
// optional ones followed by client control, which is always available.
func Protocols(features config.Features) []proto.ProtoType {
	var out []proto.ProtoType
	if features.Shell {
		out = append(out, proto.ProtoShell)
	}
	if features.FileTransfer {
		out = append(out, proto.ProtoFileTransfer)
	}
	if features.PortForward {
		out = append(out, proto.ProtoPortForward)
	}
	return append(out, proto.ProtoClientControl)
}

// Handle processes one control message.
func (h *Handler) Handle(m *proto.Message) (*proto.Message, error) {
	switch ParseMsgType(m.MsgType()) {
	case MsgPing:
		return proto.NewReply(m, MsgPong.String()), nil

	case MsgOpen:
		body, err := Accept{Version: Version, Protocols: h.protocols}.Encode()
		if err != nil {
			return nil, proto.NewResourceError("encoding accept", err)
		}
		reply := proto.NewReply(m, MsgAccept.String())
		reply.Body = body
		return reply, nil

	case MsgPong, MsgAccept, MsgClose, MsgError:
		return nil, nil

	default:
		return nil, proto.Unsupported(m)
	}
}

// Accept is the body of an accept message.
type Accept struct {
	Version   uint64
	Protocols []proto.ProtoType
}

// Encode serializes the accept body.
func (a Accept) Encode() ([]byte, error) {
	protos := make([]uint64, len(a.Protocols))
	for i, p := range a.Protocols {
		protos[i] = uint64(p)
	}
	return proto.NewMapBuilder().
		Uint(keyVersion, a.Version).
		Uints(keyProtocols, protos).
		Encode()
}

// DecodeAccept parses the body of an accept message. Protocol entries that
// are not unsigned integers are skipped.
func DecodeAccept(body []byte) (Accept, error) {
	m, err := proto.DecodeMap(body)
	if err != nil {
		return Accept{}, err
	}

	var a Accept
	a.Version, _ = m.Uint(keyVersion)
	arr, _ := m.Array(keyProtocols)
	for _, v := range arr {
		if p, ok := v.AsUint(); ok && p <= 0xFFFF {
			a.Protocols = append(a.Protocols, proto.ProtoType(p))
		}
	}
	return a, nil
}
