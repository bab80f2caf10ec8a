package main

import (
	"context"
	"fmt"
	"os"

	"devremote/troubleshoot/cmd/agent"
	"devremote/troubleshoot/cmd/console"
	"devremote/troubleshoot/cmd/shared"
	"devremote/troubleshoot/cmd/version"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx := shared.SetupSignalHandling(context.Background())

	if err := newRoot().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[!] Error: %s\n", err)
		os.Exit(1)
	}
}

func newRoot() *cli.Command {
	return &cli.Command{
		Name:  "troubleshoot",
		Usage: "remote troubleshooting agent and operator console",
		Commands: []*cli.Command{
			agent.GetCommand(),
			console.GetCommand(),
			version.GetCommand(),
		},
	}
}
