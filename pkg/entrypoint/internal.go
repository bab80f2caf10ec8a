package entrypoint

import (
	"context"
	"crypto/tls"
	"fmt"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/dispatcher"
	"devremote/troubleshoot/pkg/host/files"
	"devremote/troubleshoot/pkg/host/hooks"
	"devremote/troubleshoot/pkg/host/netconn"
	"devremote/troubleshoot/pkg/host/pty"
	tnet "devremote/troubleshoot/pkg/net"
	"devremote/troubleshoot/pkg/transport"
)

// engine is the part of the dispatcher driven by the agent loop.
type engine interface {
	HealthCheck(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

// engineFactory creates the agent's protocol engine.
type engineFactory func(cfg *config.Shared, aCfg *config.Agent) (engine, error)

// realEngineFactory wires the dispatcher to the host capabilities and the
// configured transport.
func realEngineFactory() engineFactory {
	return func(cfg *config.Shared, aCfg *config.Agent) (engine, error) {
		dialer, err := tnet.NewDialer(cfg, aCfg.Insecure)
		if err != nil {
			return nil, err
		}

		var caps dispatcher.Capabilities
		if aCfg.Features.Shell {
			caps.Shell = pty.New(aCfg.Shell, cfg.Logger)
		}
		if aCfg.Features.FileTransfer {
			caps.Files = files.New(cfg.Logger)
		}
		if aCfg.Features.PortForward {
			caps.Remote = netconn.New(cfg.Timeout, cfg.Logger, cfg.Deps)
		}

		return dispatcher.New(dispatcher.Config{
			Features:       aCfg.Features,
			HealthInterval: aCfg.HealthInterval,
			ChunkSize:      aCfg.ChunkSize,
			BatchSize:      aCfg.BatchSize,
			Path:           cfg.Path,
			SendTimeout:    cfg.Timeout,
		}, caps, hooks.New(aCfg, cfg.Logger, cfg.Deps), dialer, cfg.Logger)
	}
}

// listenFunc accepts devices and serves them with handler until ctx is done.
type listenFunc func(ctx context.Context, cfg *config.Shared, tlsCfg *tls.Config, handler transport.Handler) error

func realListen() listenFunc {
	return tnet.ListenAndServe
}

// loadTLS loads the console certificate, if one is configured.
func loadTLS(cCfg *config.Console) (*tls.Config, error) {
	if cCfg.TLSCert == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cCfg.TLSCert, cCfg.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
