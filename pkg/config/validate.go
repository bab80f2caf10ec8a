package config

import "fmt"

// ValidatableConfig is implemented by every config section.
type ValidatableConfig interface {
	Validate() []error
}

// Validate collects the errors of all given config sections.
func Validate(cfgs ...ValidatableConfig) []error {
	var out []error
	for _, cfg := range cfgs {
		out = append(out, cfg.Validate()...)
	}
	return out
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%d not in [1, 65535]", port)
	}
	return nil
}

// validateChunking checks the file transfer sizes, which agent and console
// must agree on.
func validateChunking(chunkSize, batchSize int) []error {
	var errors []error

	if chunkSize < 1 || chunkSize > MaxChunkSize {
		errors = append(errors, fmt.Errorf("'--chunk-size' must be in [1, %d]", MaxChunkSize))
	}

	if batchSize < 1 {
		errors = append(errors, fmt.Errorf("'--batch-size' must be at least 1"))
	}

	return errors
}
