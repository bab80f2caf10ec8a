// Package console provides the console command, which listens for one agent
// and runs a single troubleshooting action against it. Without an action flag
// it opens an interactive shell on the device.
package console

import (
	"context"
	"os"

	"devremote/troubleshoot/cmd/shared"
	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/entrypoint"

	"github.com/urfave/cli/v3"
)

const categoryConsole = "console"

const (
	getFlag           = "get"
	outFlag           = "out"
	putFlag           = "put"
	toFlag            = "to"
	statFlag          = "stat"
	checkUpdateFlag   = "check-update"
	sendInventoryFlag = "send-inventory"
	logFileFlag       = "log"
	tlsCertFlag       = "tls-cert"
	tlsKeyFlag        = "tls-key"
)

// GetCommand returns the console command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:        "console",
		Usage:       "Wait for an agent and troubleshoot it",
		Description: shared.GetBaseDescription(),
		ArgsUsage:   shared.GetArgsUsage(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, cCfg, err := parse(cmd, os.Getenv)
			if err != nil {
				return err
			}
			if err := shared.Validate(cfg.Logger, cfg, cCfg); err != nil {
				return err
			}

			return entrypoint.Console(ctx, cfg, cCfg)
		},
		Flags: getFlags(),
	}
}

func parse(cmd *cli.Command, getenv func(string) string) (*config.Shared, *config.Console, error) {
	cfg, err := shared.ParseShared(cmd, false)
	if err != nil {
		return nil, nil, err
	}

	cCfg := &config.Console{
		Token:         shared.Token(cmd, getenv),
		TLSCert:       cmd.String(tlsCertFlag),
		TLSKey:        cmd.String(tlsKeyFlag),
		Get:           cmd.String(getFlag),
		Out:           cmd.String(outFlag),
		Put:           cmd.String(putFlag),
		To:            cmd.String(toFlag),
		Stat:          cmd.String(statFlag),
		ChunkSize:     int(cmd.Int(shared.ChunkSizeFlag)),
		BatchSize:     int(cmd.Int(shared.BatchSizeFlag)),
		CheckUpdate:   cmd.Bool(checkUpdateFlag),
		SendInventory: cmd.Bool(sendInventoryFlag),
		LogFile:       cmd.String(logFileFlag),
	}

	return cfg, cCfg, nil
}

func getFlags() []cli.Flag {
	flags := []cli.Flag{}

	flags = append(flags, shared.GetCommonFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:     getFlag,
			Usage:    "Download a file from the device",
			Category: categoryConsole,
		},
		&cli.StringFlag{
			Name:     outFlag,
			Aliases:  []string{"o"},
			Usage:    "Local destination of --get",
			Category: categoryConsole,
		},
		&cli.StringFlag{
			Name:     putFlag,
			Usage:    "Upload a local file to the device",
			Category: categoryConsole,
		},
		&cli.StringFlag{
			Name:     toFlag,
			Usage:    "Remote destination of --put",
			Category: categoryConsole,
		},
		&cli.StringFlag{
			Name:     statFlag,
			Usage:    "Show metadata of a file on the device",
			Category: categoryConsole,
		},
		&cli.BoolFlag{
			Name:     checkUpdateFlag,
			Usage:    "Ask the device to check for an update",
			Category: categoryConsole,
		},
		&cli.BoolFlag{
			Name:     sendInventoryFlag,
			Usage:    "Ask the device to send its inventory",
			Category: categoryConsole,
		},
		&cli.StringFlag{
			Name:     logFileFlag,
			Aliases:  []string{"l"},
			Usage:    "Write a transcript of the shell output to this file",
			Category: categoryConsole,
		},
		&cli.StringFlag{
			Name:     tlsCertFlag,
			Usage:    "TLS certificate, required for wss",
			Category: categoryConsole,
		},
		&cli.StringFlag{
			Name:     tlsKeyFlag,
			Usage:    "TLS private key, required for wss",
			Category: categoryConsole,
		},
	)

	return flags
}
