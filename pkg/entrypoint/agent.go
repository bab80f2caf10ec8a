// Package entrypoint provides the entry functions of the agent and console
// commands. They wire configuration, transport and protocol engine together,
// separating it from CLI argument parsing.
package entrypoint

import (
	"context"
	"fmt"
	"time"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/log"
)

// deactivateTimeout bounds the shutdown of an agent.
const deactivateTimeout = 5 * time.Second

// Agent runs the device agent until ctx is cancelled. A health check runs
// immediately and then every aCfg.HealthInterval; it connects to the server
// when disconnected and keeps an open shell alive.
func Agent(ctx context.Context, cfg *config.Shared, aCfg *config.Agent) error {
	return agent(ctx, cfg, aCfg, realEngineFactory())
}

func agent(ctx context.Context, cfg *config.Shared, aCfg *config.Agent, newEngine engineFactory) error {
	e, err := newEngine(cfg, aCfg)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	return runHealthLoop(ctx, e, aCfg.HealthInterval, cfg.Logger)
}

func runHealthLoop(ctx context.Context, e engine, interval time.Duration, logger *log.Logger) error {
	check := func() {
		if err := e.HealthCheck(ctx); err != nil && ctx.Err() == nil {
			logger.WarnMsg("Health check: %s\n", err)
		}
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			check()

		case <-ctx.Done():
			logger.VerboseMsg("Agent: context cancelled, deactivating")
			dctx, cancel := context.WithTimeout(context.Background(), deactivateTimeout)
			defer cancel()
			if err := e.Deactivate(dctx); err != nil {
				return fmt.Errorf("deactivating: %w", err)
			}
			return nil
		}
	}
}
