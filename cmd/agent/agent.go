// Package agent provides the agent command, which runs on the device. It
// connects out to the troubleshooting server from its health check and serves
// the sub-protocols enabled by its flags.
package agent

import (
	"context"
	"os"

	"devremote/troubleshoot/cmd/shared"
	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/entrypoint"
	"devremote/troubleshoot/pkg/host/pty"

	"github.com/urfave/cli/v3"
)

const categoryAgent = "agent"

const (
	healthIntervalFlag = "health-interval"
	shellFlag          = "shell"
	updateCmdFlag      = "update-cmd"
	inventoryCmdFlag   = "inventory-cmd"
	insecureFlag       = "insecure"
	noShellFlag        = "no-shell"
	noFilesFlag        = "no-files"
	noForwardFlag      = "no-forward"
)

// GetCommand returns the agent command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:        "agent",
		Usage:       "Run the device agent and connect to a troubleshooting server",
		Description: shared.GetBaseDescription(),
		ArgsUsage:   shared.GetArgsUsage(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, aCfg, err := parse(cmd, os.Getenv)
			if err != nil {
				return err
			}
			if err := shared.Validate(cfg.Logger, cfg, aCfg); err != nil {
				return err
			}

			return entrypoint.Agent(ctx, cfg, aCfg)
		},
		Flags: getFlags(),
	}
}

func parse(cmd *cli.Command, getenv func(string) string) (*config.Shared, *config.Agent, error) {
	cfg, err := shared.ParseShared(cmd, true)
	if err != nil {
		return nil, nil, err
	}

	aCfg := &config.Agent{
		Token:          shared.Token(cmd, getenv),
		HealthInterval: cmd.Duration(healthIntervalFlag),
		Features: config.Features{
			Shell:        !cmd.Bool(noShellFlag),
			FileTransfer: !cmd.Bool(noFilesFlag),
			PortForward:  !cmd.Bool(noForwardFlag),
		},
		Insecure:     cmd.Bool(insecureFlag),
		ChunkSize:    int(cmd.Int(shared.ChunkSizeFlag)),
		BatchSize:    int(cmd.Int(shared.BatchSizeFlag)),
		Shell:        cmd.String(shellFlag),
		UpdateCmd:    cmd.String(updateCmdFlag),
		InventoryCmd: cmd.String(inventoryCmdFlag),
	}

	return cfg, aCfg, nil
}

func getFlags() []cli.Flag {
	flags := []cli.Flag{}

	flags = append(flags, shared.GetCommonFlags()...)
	flags = append(flags,
		&cli.DurationFlag{
			Name:     healthIntervalFlag,
			Usage:    "Period of the health check, which connects and keeps the shell alive",
			Category: categoryAgent,
			Value:    config.DefaultHealthInterval,
		},
		&cli.StringFlag{
			Name:     shellFlag,
			Usage:    "Program started for remote shell sessions",
			Category: categoryAgent,
			Value:    pty.DefaultShell,
		},
		&cli.StringFlag{
			Name:     updateCmdFlag,
			Usage:    "Shell command run when the server requests an update check",
			Category: categoryAgent,
		},
		&cli.StringFlag{
			Name:     inventoryCmdFlag,
			Usage:    "Shell command run when the server requests the inventory",
			Category: categoryAgent,
		},
		&cli.BoolFlag{
			Name:     insecureFlag,
			Usage:    "Skip certificate verification for wss",
			Category: categoryAgent,
		},
		&cli.BoolFlag{
			Name:     noShellFlag,
			Usage:    "Disable remote shell sessions",
			Category: categoryAgent,
		},
		&cli.BoolFlag{
			Name:     noFilesFlag,
			Usage:    "Disable file transfer",
			Category: categoryAgent,
		},
		&cli.BoolFlag{
			Name:     noForwardFlag,
			Usage:    "Disable port forwarding",
			Category: categoryAgent,
		},
	)

	return flags
}

