// Package hooks implements the device client: the commands run on
// client control requests and the credentials presented when connecting.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/log"
)

var (
	// ErrNotConfigured is returned for a request whose command is unset.
	ErrNotConfigured = errors.New("no command configured")
	// ErrNoToken is returned when no auth token is configured.
	ErrNoToken = errors.New("no auth token configured")
)

// Client runs the configured hook commands through /bin/sh.
type Client struct {
	token        string
	updateCmd    string
	inventoryCmd string

	logger *log.Logger
	deps   *config.Dependencies
}

// New creates a client from the agent configuration.
func New(cfg *config.Agent, logger *log.Logger, deps *config.Dependencies) *Client {
	return &Client{
		token:        cfg.Token,
		updateCmd:    cfg.UpdateCmd,
		inventoryCmd: cfg.InventoryCmd,
		logger:       logger,
		deps:         deps,
	}
}

// CheckForUpdate runs the update command.
func (c *Client) CheckForUpdate() error {
	return c.run("check-update", c.updateCmd)
}

// SendInventory runs the inventory command.
func (c *Client) SendInventory() error {
	return c.run("send-inventory", c.inventoryCmd)
}

// NetworkAccess always grants access; the host has no connectivity manager.
func (c *Client) NetworkAccess(ctx context.Context) error {
	return ctx.Err()
}

// AuthToken returns the configured token.
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	if c.token == "" {
		return "", ErrNoToken
	}
	return c.token, nil
}

func (c *Client) run(name, cmdline string) error {
	if cmdline == "" {
		return fmt.Errorf("%s: %w", name, ErrNotConfigured)
	}

	c.logger.InfoMsg("Running %s hook\n", name)
	out, err := config.GetExecCommandFunc(c.deps)("/bin/sh", "-c", cmdline).CombinedOutput()
	if len(out) > 0 {
		c.logger.VerboseMsg("%s output: %s", name, strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
