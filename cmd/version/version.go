// Package version provides the version command.
package version

import (
	"context"
	"fmt"
	"io"

	"devremote/troubleshoot/pkg/handler/control"

	"github.com/urfave/cli/v3"
)

// Version is set at build time with -ldflags "-X ...version.Version=...".
var Version = "unknown"

// GetCommand returns the version command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Program and protocol version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return write(cmd.Root().Writer, Version)
		},
	}
}

func write(w io.Writer, version string) error {
	_, err := fmt.Fprintf(w, "%s (protocol %d)\n", version, control.Version)
	return err
}
