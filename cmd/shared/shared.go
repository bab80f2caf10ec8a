// Package shared provides the flag definitions and helpers used by the agent
// and console commands.
package shared

import (
	"fmt"
	"strings"
	"time"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/log"

	"github.com/urfave/cli/v3"
)

const categoryCommon = "common"

// TokenFlag is the name of the flag holding the device token.
const TokenFlag = "token"

// TokenEnv is read when the token flag is not given.
const TokenEnv = "TROUBLESHOOT_TOKEN"

// VerboseFlag is the name of the flag to enable verbose logging.
const VerboseFlag = "verbose"

// TimeoutFlag is the name of the flag bounding dials and frame writes.
const TimeoutFlag = "timeout"

// ChunkSizeFlag is the name of the flag for the file chunk size.
const ChunkSizeFlag = "chunk-size"

// BatchSizeFlag is the name of the flag for the chunks sent per ack.
const BatchSizeFlag = "batch-size"

// GetBaseDescription returns the description of the transport argument.
func GetBaseDescription() string {
	return strings.Join([]string{
		"Specify transport like this: tcp://127.0.0.1:123 (supports tcp|ws|wss|udp)",
		"Websocket transports take an optional path: wss://example.com:443/agent",
		"You can omit the host when listening to bind to all interfaces.",
	}, "\n")
}

// GetArgsUsage returns the arguments usage string for CLI commands.
func GetArgsUsage() string {
	return "transport"
}

// GetCommonFlags returns the flags used by both the agent and the console.
func GetCommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     TokenFlag,
			Usage:    "Device token, defaults to $" + TokenEnv,
			Category: categoryCommon,
			Value:    "",
		},
		&cli.BoolFlag{
			Name:     VerboseFlag,
			Aliases:  []string{"v"},
			Usage:    "Verbose logging",
			Category: categoryCommon,
			Value:    false,
		},
		&cli.DurationFlag{
			Name:     TimeoutFlag,
			Aliases:  []string{"t"},
			Usage:    "Timeout for dialing and for writing a single frame",
			Category: categoryCommon,
			Value:    10 * time.Second,
		},
		&cli.IntFlag{
			Name:     ChunkSizeFlag,
			Usage:    "Payload bytes per file chunk, must match on agent and console",
			Category: categoryCommon,
			Value:    config.DefaultChunkSize,
		},
		&cli.IntFlag{
			Name:     BatchSizeFlag,
			Usage:    "File chunks sent per acknowledgement, must match on agent and console",
			Category: categoryCommon,
			Value:    config.DefaultBatchSize,
		},
	}
}

// Token returns the token flag or, if unset, the token environment variable.
func Token(cmd *cli.Command, getenv func(string) string) string {
	if t := cmd.String(TokenFlag); t != "" {
		return t
	}
	return getenv(TokenEnv)
}

// ParseShared builds the shared configuration from the transport argument and
// the common flags. requireHost is set for commands that dial.
func ParseShared(cmd *cli.Command, requireHost bool) (*config.Shared, error) {
	args := cmd.Args()
	if args.Len() != 1 {
		return nil, fmt.Errorf("must provide exactly one argument, got %d (%s)", args.Len(), strings.Join(args.Slice(), ", "))
	}

	t, err := ParseTransport(args.Get(0))
	if err != nil {
		return nil, fmt.Errorf("parsing transport: %w", err)
	}
	if requireHost && t.Host == "" {
		return nil, fmt.Errorf("parsing transport: %s: specify a host", args.Get(0))
	}

	verbose := cmd.Bool(VerboseFlag)
	return &config.Shared{
		Protocol: t.Protocol,
		Host:     t.Host,
		Port:     t.Port,
		Path:     t.Path,
		Timeout:  cmd.Duration(TimeoutFlag),
		Verbose:  verbose,
		Logger:   log.NewLogger(verbose),
	}, nil
}

// Validate validates cfgs and logs every error.
func Validate(logger *log.Logger, cfgs ...config.ValidatableConfig) error {
	errs := config.Validate(cfgs...)
	if len(errs) == 0 {
		return nil
	}

	logger.ErrorMsg("Argument validation errors:\n")
	for _, err := range errs {
		logger.ErrorMsg(" - %s\n", err)
	}
	return fmt.Errorf("invalid arguments")
}
