package net

import (
	"context"
	"crypto/tls"
	"errors"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/format"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/transport"
	"devremote/troubleshoot/pkg/transport/tcp"
	"devremote/troubleshoot/pkg/transport/udp"
	"devremote/troubleshoot/pkg/transport/ws"
)

// ErrTLSRequired is returned when wss is selected without a certificate.
var ErrTLSRequired = errors.New("wss requires a TLS certificate")

// listenDependencies holds injectable dependencies for testing.
type listenDependencies struct {
	listenAndServeTCP func(ctx context.Context, addr string, handler transport.Handler, logger *log.Logger, deps *config.Dependencies) error
	listenAndServeWS  func(ctx context.Context, addr string, opts ws.Options, handler transport.Handler, logger *log.Logger) error
	listenAndServeUDP func(ctx context.Context, addr string, handler transport.Handler, logger *log.Logger, deps *config.Dependencies) error
}

// ListenAndServe accepts one device at a time on the configured address and
// serves it with handler until ctx is cancelled. tlsCfg is required for wss
// and ignored otherwise.
func ListenAndServe(ctx context.Context, cfg *config.Shared, tlsCfg *tls.Config, handler transport.Handler) error {
	deps := &listenDependencies{
		listenAndServeTCP: tcp.ListenAndServe,
		listenAndServeWS:  ws.ListenAndServe,
		listenAndServeUDP: udp.ListenAndServe,
	}
	return listenAndServe(ctx, cfg, tlsCfg, handler, deps)
}

func listenAndServe(ctx context.Context, cfg *config.Shared, tlsCfg *tls.Config, handler transport.Handler, deps *listenDependencies) error {
	addr := format.Addr(cfg.Host, cfg.Port)
	cfg.Logger.InfoMsg("Listening on %s://%s\n", cfg.Protocol, addr)

	switch cfg.Protocol {
	case config.ProtoWS:
		return deps.listenAndServeWS(ctx, addr, ws.Options{Path: cfg.Path}, handler, cfg.Logger)

	case config.ProtoWSS:
		if tlsCfg == nil {
			return ErrTLSRequired
		}
		return deps.listenAndServeWS(ctx, addr, ws.Options{Path: cfg.Path, TLS: tlsCfg}, handler, cfg.Logger)

	case config.ProtoUDP:
		return deps.listenAndServeUDP(ctx, addr, handler, cfg.Logger, cfg.Deps)

	default:
		return deps.listenAndServeTCP(ctx, addr, handler, cfg.Logger, cfg.Deps)
	}
}
