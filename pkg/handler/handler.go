// Package handler holds what the sub-protocol handlers have in common.
//
// A handler processes the inbound messages of one sub-protocol. It returns
// the reply to send, if any, and an error describing what went wrong
// locally. Both may be set: the reply is sent first and the error is only
// logged. Messages a handler initiates itself (file chunks, keep-alive
// pings, forwarded data) go through a Sender.
package handler

import "devremote/troubleshoot/pkg/proto"

// Handler processes inbound messages of one sub-protocol.
type Handler interface {
	Handle(m *proto.Message) (*proto.Message, error)
}

// Sender delivers device initiated messages to the peer.
type Sender interface {
	Send(m *proto.Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(m *proto.Message) error

// Send calls f(m).
func (f SenderFunc) Send(m *proto.Message) error {
	return f(m)
}

// Status returns the status to report for the outcome err.
func Status(err error) proto.Status {
	if err != nil {
		return proto.StatusError
	}
	return proto.StatusNormal
}
