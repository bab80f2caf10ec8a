package tcp

import (
	"context"
	"fmt"
	"net"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/transport"
)

// ListenAndServe listens on addr and serves one device at a time until ctx
// is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler transport.Handler, logger *log.Logger, deps *config.Dependencies) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("net.ResolveTCPAddr(tcp, %s): %w", addr, err)
	}

	listenFn := config.GetTCPListenerFunc(deps)
	nl, err := listenFn("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listen(tcp, %s): %w", addr, err)
	}
	defer nl.Close()

	return transport.ServeStream(ctx, nl, handler, logger)
}
