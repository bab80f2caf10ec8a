// Package netconn provides the port forwarding capability: outbound TCP and
// UDP connections from the device.
package netconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/format"
	"devremote/troubleshoot/pkg/handler/portfwd"
	"devremote/troubleshoot/pkg/log"
)

// DefaultTimeout bounds how long a connect may block.
const DefaultTimeout = 10 * time.Second

// Remote dials remote hosts on behalf of the peer.
type Remote struct {
	deps    *config.Dependencies
	timeout time.Duration
	logger  *log.Logger
}

// New creates the capability. A zero timeout selects DefaultTimeout.
func New(timeout time.Duration, logger *log.Logger, deps *config.Dependencies) *Remote {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Remote{deps: deps, timeout: timeout, logger: logger}
}

// Connect dials host:port over protocol ("tcp" or "udp") and pumps what the
// remote end sends to out until it closes.
func (r *Remote) Connect(host string, port uint16, protocol string, out portfwd.Output) (portfwd.Conn, error) {
	addr := format.Addr(host, int(port))

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var (
		nc  net.Conn
		err error
	)
	switch protocol {
	case "tcp":
		var raddr *net.TCPAddr
		if raddr, err = net.ResolveTCPAddr("tcp", addr); err != nil {
			return nil, fmt.Errorf("resolving %s: %w", addr, err)
		}
		nc, err = config.GetTCPDialerFunc(r.deps)(ctx, "tcp", nil, raddr)
	case "udp":
		var raddr *net.UDPAddr
		if raddr, err = net.ResolveUDPAddr("udp", addr); err != nil {
			return nil, fmt.Errorf("resolving %s: %w", addr, err)
		}
		nc, err = config.GetUDPDialerFunc(r.deps)(ctx, "udp", nil, raddr)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s/%s: %w", addr, protocol, err)
	}

	r.logger.VerboseMsg("Forwarding to %s/%s", addr, protocol)

	c := &conn{nc: nc}
	go c.readLoop(out, r.logger)
	return c, nil
}

type conn struct {
	nc        net.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *conn) readLoop(out portfwd.Output, logger *log.Logger) {
	buf := make([]byte, 32*1024)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if ferr := out.Forward(chunk); ferr != nil {
				logger.VerboseMsg("Dropping forwarded data: %s", ferr)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.VerboseMsg("Reading from %s: %s", c.nc.RemoteAddr(), err)
			}
			_ = c.Close()
			out.Closed()
			return
		}
	}
}

// Send writes p to the remote end.
func (c *conn) Send(p []byte) error {
	_, err := c.nc.Write(p)
	return err
}

// Close closes the connection. The reader is not waited for.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}
