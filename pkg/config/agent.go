package config

import (
	"fmt"
	"time"
)

const (
	// DefaultChunkSize is the payload size of one file_chunk message.
	DefaultChunkSize = 1024
	// DefaultBatchSize is the number of chunks sent before waiting for an ack.
	DefaultBatchSize = 10
	// DefaultHealthInterval is the period of the health check.
	DefaultHealthInterval = 30 * time.Second
	// MaxChunkSize bounds ChunkSize so a single frame stays well below the
	// transport frame limit.
	MaxChunkSize = 512 * 1024
)

// Features selects the optional sub-protocols served by the agent.
type Features struct {
	Shell        bool
	FileTransfer bool
	PortForward  bool
}

// AllFeatures enables every optional sub-protocol.
func AllFeatures() Features {
	return Features{Shell: true, FileTransfer: true, PortForward: true}
}

// Agent contains configuration specific to the device agent.
type Agent struct {
	Token          string
	HealthInterval time.Duration
	Features       Features
	Insecure       bool // skip wss certificate verification

	ChunkSize int
	BatchSize int

	Shell        string // program started for remote shell sessions
	UpdateCmd    string // run on a check-update request
	InventoryCmd string // run on a send-inventory request
}

// Validate checks the agent configuration.
func (cfg *Agent) Validate() []error {
	var errors []error

	if cfg.HealthInterval <= 0 {
		errors = append(errors, fmt.Errorf("'--health-interval' must be positive"))
	}

	errors = append(errors, validateChunking(cfg.ChunkSize, cfg.BatchSize)...)

	if cfg.Features.Shell && cfg.Shell == "" {
		errors = append(errors, fmt.Errorf("'--shell' must not be empty when the shell is enabled"))
	}

	return errors
}
