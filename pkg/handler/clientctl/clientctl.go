// Package clientctl lets the server poke the device client: check for an
// update or send the inventory right away.
package clientctl

import (
	"devremote/troubleshoot/pkg/handler"
	"devremote/troubleshoot/pkg/proto"
)

// Client is the outer device client.
type Client interface {
	CheckForUpdate() error
	SendInventory() error
}

// MsgType enumerates the client control message types.
type MsgType int

const (
	MsgUnknown MsgType = iota
	MsgCheckUpdate
	MsgSendInventory
)

// ParseMsgType maps a wire message type to its MsgType.
func ParseMsgType(s string) MsgType {
	switch s {
	case "check-update":
		return MsgCheckUpdate
	case "send-inventory":
		return MsgSendInventory
	default:
		return MsgUnknown
	}
}

func (t MsgType) String() string {
	switch t {
	case MsgCheckUpdate:
		return "check-update"
	case MsgSendInventory:
		return "send-inventory"
	default:
		return "unknown"
	}
}

// Handler triggers client actions and acknowledges them with a status.
type Handler struct {
	client Client
}

// New creates a client control handler.
func New(client Client) *Handler {
	return &Handler{client: client}
}

// Handle runs the requested action and replies with the same message type.
// On failure the reply carries status error and the error text as body.
func (h *Handler) Handle(m *proto.Message) (*proto.Message, error) {
	var err error
	switch t := ParseMsgType(m.MsgType()); t {
	case MsgCheckUpdate:
		if err = h.client.CheckForUpdate(); err != nil {
			err = proto.NewCapabilityError("checking for update", err)
		}
	case MsgSendInventory:
		if err = h.client.SendInventory(); err != nil {
			err = proto.NewCapabilityError("sending inventory", err)
		}
	default:
		return nil, proto.Unsupported(m)
	}

	reply := proto.NewReply(m, m.MsgType())
	reply.Header.Props().Status = proto.StatusPtr(handler.Status(err))
	if err != nil {
		reply.Body = []byte(err.Error())
	}
	return reply, err
}
