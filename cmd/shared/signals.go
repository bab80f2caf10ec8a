package shared

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// gracePeriod is how long the agent may take to deactivate after the first
// signal.
const gracePeriod = 5 * time.Second

// SetupSignalHandling cancels the returned context on SIGINT or SIGTERM. A
// second signal, or a shutdown exceeding the grace period, exits at once.
func SetupSignalHandling(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		s := <-sigCh
		cancel()

		select {
		case <-sigCh:
			if ss, ok := s.(syscall.Signal); ok {
				os.Exit(128 + int(ss))
			}
			os.Exit(1)
		case <-time.After(gracePeriod):
			os.Exit(1)
		}
	}()

	return ctx
}
