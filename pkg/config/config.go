// Package config holds the typed configuration of the agent and console
// commands together with their validation rules.
package config

import (
	"fmt"
	"strings"
	"time"

	"devremote/troubleshoot/pkg/log"
)

// Protocol selects the transport used to reach the peer.
type Protocol int

const (
	ProtoTCP Protocol = iota + 1
	ProtoWS
	ProtoWSS
	ProtoUDP
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoWS:
		return "ws"
	case ProtoWSS:
		return "wss"
	case ProtoUDP:
		return "udp"
	default:
		return ""
	}
}

// Shared contains the settings common to the agent and the console.
type Shared struct {
	Protocol Protocol
	Host     string
	Port     int
	Path     string // websocket request path
	Timeout  time.Duration
	Verbose  bool

	Logger *log.Logger
	Deps   *Dependencies
}

// Validate checks the shared settings.
func (c *Shared) Validate() []error {
	var errors []error

	if err := validatePort(c.Port); err != nil {
		errors = append(errors, fmt.Errorf("'--port' %s", err))
	}

	if c.Path != "" && !strings.HasPrefix(c.Path, "/") {
		errors = append(errors, fmt.Errorf("'--path' must start with '/'"))
	}

	if c.Timeout < 0 {
		errors = append(errors, fmt.Errorf("'--timeout' must not be negative"))
	}

	return errors
}
