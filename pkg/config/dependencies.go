package config

import (
	"context"
	"net"
	"os/exec"
)

// Dependencies contains injectable dependencies for testing and customization.
// All fields are optional and will use default implementations if nil.
type Dependencies struct {
	TCPDialer      TCPDialerFunc
	TCPListener    TCPListenerFunc
	UDPDialer      UDPDialerFunc
	PacketListener PacketListenerFunc
	ExecCommand    ExecCommandFunc
}

// TCPDialerFunc is a function that dials a TCP connection.
// It returns a net.Conn to allow for mock implementations.
type TCPDialerFunc func(ctx context.Context, network string, laddr, raddr *net.TCPAddr) (net.Conn, error)

// TCPListenerFunc is a function that creates a TCP listener.
type TCPListenerFunc func(network string, laddr *net.TCPAddr) (net.Listener, error)

// UDPDialerFunc is a function that dials a connected UDP socket.
type UDPDialerFunc func(ctx context.Context, network string, laddr, raddr *net.UDPAddr) (net.Conn, error)

// PacketListenerFunc is a function that creates a packet listener.
// It returns a net.PacketConn to allow for mock implementations.
type PacketListenerFunc func(network, address string) (net.PacketConn, error)

// ExecCommandFunc is a function that creates a command executor.
// It returns a Cmd interface to allow for mock implementations.
type ExecCommandFunc func(program string, args ...string) Cmd

// Cmd is an interface that represents a command to be executed.
// It wraps the functionality needed from *exec.Cmd for testing.
type Cmd interface {
	CombinedOutput() ([]byte, error)
}

// GetTCPDialerFunc returns the TCP dialer function from dependencies, or a default implementation.
// If deps is nil or deps.TCPDialer is nil, returns a function that uses net.Dialer.
func GetTCPDialerFunc(deps *Dependencies) TCPDialerFunc {
	if deps != nil && deps.TCPDialer != nil {
		return deps.TCPDialer
	}
	return func(ctx context.Context, network string, laddr, raddr *net.TCPAddr) (net.Conn, error) {
		d := net.Dialer{}
		if laddr != nil {
			d.LocalAddr = laddr
		}
		return d.DialContext(ctx, network, raddr.String())
	}
}

// GetTCPListenerFunc returns the TCP listener function from dependencies, or net.ListenTCP.
func GetTCPListenerFunc(deps *Dependencies) TCPListenerFunc {
	if deps != nil && deps.TCPListener != nil {
		return deps.TCPListener
	}
	return func(network string, laddr *net.TCPAddr) (net.Listener, error) {
		return net.ListenTCP(network, laddr)
	}
}

// GetUDPDialerFunc returns the UDP dialer function from dependencies, or a default implementation.
func GetUDPDialerFunc(deps *Dependencies) UDPDialerFunc {
	if deps != nil && deps.UDPDialer != nil {
		return deps.UDPDialer
	}
	return func(ctx context.Context, network string, laddr, raddr *net.UDPAddr) (net.Conn, error) {
		d := net.Dialer{}
		if laddr != nil {
			d.LocalAddr = laddr
		}
		return d.DialContext(ctx, network, raddr.String())
	}
}

// GetPacketListenerFunc returns the packet listener function from dependencies, or a default implementation.
// If deps is nil or deps.PacketListener is nil, returns a function that uses net.ListenPacket.
func GetPacketListenerFunc(deps *Dependencies) PacketListenerFunc {
	if deps != nil && deps.PacketListener != nil {
		return deps.PacketListener
	}
	return func(network, address string) (net.PacketConn, error) {
		return net.ListenPacket(network, address)
	}
}

// GetExecCommandFunc returns the exec command function from dependencies, or a default implementation.
// If deps is nil or deps.ExecCommand is nil, returns a function that uses exec.Command.
func GetExecCommandFunc(deps *Dependencies) ExecCommandFunc {
	if deps != nil && deps.ExecCommand != nil {
		return deps.ExecCommand
	}
	return func(program string, args ...string) Cmd {
		return exec.Command(program, args...)
	}
}
