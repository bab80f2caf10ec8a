// Package tcp provides the tcp transport: length-prefixed frames over a TCP
// stream, with the device token sent as the first frame.
package tcp

import (
	"context"
	"fmt"
	"net"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/transport"
)

// Dialer implements transport.Dialer for TCP connections.
type Dialer struct {
	tcpAddr *net.TCPAddr
	dialFn  config.TCPDialerFunc
}

// NewDialer creates a new TCP dialer for the specified address.
// The deps parameter is optional and can be nil to use default implementations.
func NewDialer(addr string, deps *config.Dependencies) (*Dialer, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveTCPAddr(tcp, %s): %w", addr, err)
	}

	return &Dialer{
		tcpAddr: tcpAddr,
		dialFn:  config.GetTCPDialerFunc(deps),
	}, nil
}

// Dial connects with keep-alive enabled, presents the token and starts
// delivering frames to cb.
func (d *Dialer) Dial(ctx context.Context, req transport.DialRequest, cb transport.Callbacks) (transport.Conn, error) {
	conn, err := d.dialFn(ctx, "tcp", nil, d.tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial(tcp, %s): %w", d.tcpAddr.String(), err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
	}

	fc := transport.NewStreamFrameConn(conn)
	if err := transport.ClientHandshake(ctx, fc, req.Token); err != nil {
		_ = fc.Close()
		return nil, err
	}

	return transport.NewConn(fc, cb), nil
}
