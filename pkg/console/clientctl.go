package console

import (
	"context"
	"fmt"

	"devremote/troubleshoot/pkg/handler/clientctl"
	"devremote/troubleshoot/pkg/proto"
)

// Request asks the device client to run action and waits for its status.
func (p *Peer) Request(ctx context.Context, action clientctl.MsgType) error {
	sid := newSessionID()
	if err := p.Send(ctx, proto.New(proto.ProtoClientControl, action.String(), sid)); err != nil {
		return err
	}

	m, err := p.recvReply(ctx, proto.ProtoClientControl, sid)
	if err != nil {
		return err
	}
	if m.MsgType() != action.String() {
		return fmt.Errorf("unexpected reply %q to %s", m.MsgType(), action)
	}
	return statusError(m)
}
