// Package udp provides the udp transport: length-prefixed frames over a KCP
// session, which adds reliable ordered delivery on top of UDP.
package udp

import (
	"context"
	"fmt"
	"net"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/transport"

	kcp "github.com/xtaci/kcp-go/v5"
)

// Dialer implements transport.Dialer for UDP connections with KCP.
type Dialer struct {
	remoteAddr   *net.UDPAddr
	packetConnFn config.PacketListenerFunc
}

// NewDialer creates a new UDP dialer for the specified address.
// The deps parameter is optional and can be nil to use default implementations.
func NewDialer(addr string, deps *config.Dependencies) (*Dialer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveUDPAddr(udp, %s): %w", addr, err)
	}

	return &Dialer{
		remoteAddr:   udpAddr,
		packetConnFn: config.GetPacketListenerFunc(deps),
	}, nil
}

// Dial establishes a KCP session, presents the token and starts delivering
// frames to cb.
func (d *Dialer) Dial(ctx context.Context, req transport.DialRequest, cb transport.Callbacks) (transport.Conn, error) {
	// ":0" lets the OS choose an ephemeral port
	conn, err := d.packetConnFn("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("listen(udp, :0): %w", err)
	}

	// no block cipher, no FEC shards
	kcpConn, err := kcp.NewConn(d.remoteAddr.String(), nil, 0, 0, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("kcp.NewConn(%s): %w", d.remoteAddr.String(), err)
	}
	tune(kcpConn)

	fc := transport.NewStreamFrameConn(kcpConn)
	if err := transport.ClientHandshake(ctx, fc, req.Token); err != nil {
		_ = fc.Close()
		_ = conn.Close()
		return nil, err
	}

	return transport.NewConn(&ownedFrameConn{FrameConn: fc, pc: conn}, cb), nil
}

// tune applies low latency settings: nodelay on, 10ms interval, fast resend
// after 2 ACK crossings, congestion control off.
func tune(s *kcp.UDPSession) {
	s.SetNoDelay(1, 10, 2, 1)
	s.SetStreamMode(true)
	s.SetWindowSize(1024, 1024)
}

// ownedFrameConn closes the packet conn the KCP session was created on; a
// session built with kcp.NewConn does not own it.
type ownedFrameConn struct {
	transport.FrameConn
	pc net.PacketConn
}

func (o *ownedFrameConn) Close() error {
	err := o.FrameConn.Close()
	_ = o.pc.Close()
	return err
}
