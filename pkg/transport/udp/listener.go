package udp

import (
	"context"
	"fmt"
	"net"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/transport"

	kcp "github.com/xtaci/kcp-go/v5"
)

// ListenAndServe listens for KCP sessions on addr and serves one device at a
// time until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler transport.Handler, logger *log.Logger, deps *config.Dependencies) error {
	if _, err := net.ResolveUDPAddr("udp", addr); err != nil {
		return fmt.Errorf("net.ResolveUDPAddr(udp, %s): %w", addr, err)
	}

	packetConnFn := config.GetPacketListenerFunc(deps)
	conn, err := packetConnFn("udp", addr)
	if err != nil {
		return fmt.Errorf("listen(udp, %s): %w", addr, err)
	}
	defer conn.Close()

	kl, err := kcp.ServeConn(nil, 0, 0, conn)
	if err != nil {
		return fmt.Errorf("kcp.ServeConn(): %w", err)
	}
	defer kl.Close()

	return transport.ServeStream(ctx, &listener{kl}, handler, logger)
}

// listener tunes every accepted session.
type listener struct {
	*kcp.Listener
}

func (l *listener) Accept() (net.Conn, error) {
	s, err := l.AcceptKCP()
	if err != nil {
		return nil, err
	}
	tune(s)
	return s, nil
}
