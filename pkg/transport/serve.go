package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/semaphore"
)

// HandshakeTimeout bounds how long an accepted stream connection may take to
// present its token.
const HandshakeTimeout = 10 * time.Second

// ServeStream accepts connections from nl until ctx is cancelled. Only one
// device is served at a time; further connections are closed while a handler
// is active. Each connection is framed with NewStreamFrameConn and must
// present its token as the first frame.
func ServeStream(ctx context.Context, nl net.Listener, handler Handler, logger *log.Logger) error {
	slots := semaphore.New(1) // a single active handler

	go func() {
		<-ctx.Done()
		_ = nl.Close()
	}()

	for {
		conn, err := nl.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("Accept(): %w", err)
		}

		if !slots.TryAcquire() {
			logger.WarnMsg("Rejecting connection from %s, already serving a device\n", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}
		go func() {
			defer slots.Release()
			serveStreamConn(ctx, conn, handler, logger)
		}()
	}
}

func serveStreamConn(ctx context.Context, conn net.Conn, handler Handler, logger *log.Logger) {
	fc := NewStreamFrameConn(conn)
	defer func() { _ = fc.Close() }()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorMsg("Handler panic: %v\n", r)
		}
	}()

	logger.InfoMsg("New connection from %s\n", conn.RemoteAddr())

	hctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	token, err := ServerHandshake(hctx, fc)
	cancel()
	if err != nil {
		logger.ErrorMsg("Handshake with %s: %s\n", conn.RemoteAddr(), err)
		return
	}

	if err := handler(ctx, fc, token); err != nil {
		logger.ErrorMsg("Handling connection: %s\n", err)
	}
}
