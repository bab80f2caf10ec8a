// Package net selects the transport for the configured protocol: NewDialer
// on the agent side and ListenAndServe on the console side.
package net

import (
	"fmt"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/format"
	"devremote/troubleshoot/pkg/transport"
	"devremote/troubleshoot/pkg/transport/tcp"
	"devremote/troubleshoot/pkg/transport/udp"
	"devremote/troubleshoot/pkg/transport/ws"
)

// dialDependencies holds injectable dependencies for testing.
type dialDependencies struct {
	newTCPDialer func(addr string, deps *config.Dependencies) (transport.Dialer, error)
	newWSDialer  func(addr string, proto config.Protocol, insecure bool) transport.Dialer
	newUDPDialer func(addr string, deps *config.Dependencies) (transport.Dialer, error)
}

func realNewTCPDialer(addr string, deps *config.Dependencies) (transport.Dialer, error) {
	return tcp.NewDialer(addr, deps)
}

func realNewWSDialer(addr string, proto config.Protocol, insecure bool) transport.Dialer {
	return ws.NewDialer(addr, proto, insecure)
}

func realNewUDPDialer(addr string, deps *config.Dependencies) (transport.Dialer, error) {
	return udp.NewDialer(addr, deps)
}

// NewDialer returns the dialer for cfg.Protocol. With insecure set, wss
// does not verify the server certificate.
func NewDialer(cfg *config.Shared, insecure bool) (transport.Dialer, error) {
	deps := &dialDependencies{
		newTCPDialer: realNewTCPDialer,
		newWSDialer:  realNewWSDialer,
		newUDPDialer: realNewUDPDialer,
	}
	return newDialer(cfg, insecure, deps)
}

func newDialer(cfg *config.Shared, insecure bool, deps *dialDependencies) (transport.Dialer, error) {
	addr := format.Addr(cfg.Host, cfg.Port)
	cfg.Logger.VerboseMsg("Using %s transport to %s", cfg.Protocol, addr)

	switch cfg.Protocol {
	case config.ProtoWS, config.ProtoWSS:
		return deps.newWSDialer(addr, cfg.Protocol, insecure), nil

	case config.ProtoUDP:
		dialer, err := deps.newUDPDialer(addr, cfg.Deps)
		if err != nil {
			return nil, fmt.Errorf("create UDP dialer: %w", err)
		}
		return dialer, nil

	case config.ProtoTCP:
		dialer, err := deps.newTCPDialer(addr, cfg.Deps)
		if err != nil {
			return nil, fmt.Errorf("create TCP dialer: %w", err)
		}
		return dialer, nil

	default:
		return nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}
}
