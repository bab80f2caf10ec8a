package config

import "fmt"

// Console contains configuration specific to the operator console.
type Console struct {
	Token string // expected device token, empty accepts any

	TLSCert string // certificate for wss
	TLSKey  string

	Get       string // remote path to download
	Out       string // local destination of a download
	Put       string // local file to upload
	To        string // remote destination of an upload
	Stat      string // remote path to query
	ChunkSize int    // must match the agent, to detect the last chunk
	BatchSize int    // chunks the agent sends per ack

	CheckUpdate   bool
	SendInventory bool

	LogFile string // transcript of shell output
}

// Validate checks the console configuration.
func (cfg *Console) Validate() []error {
	var errors []error

	if cfg.Get != "" && cfg.Out == "" {
		errors = append(errors, fmt.Errorf("'--get' requires '--out'"))
	}

	if cfg.Put != "" && cfg.To == "" {
		errors = append(errors, fmt.Errorf("'--put' requires '--to'"))
	}

	if cfg.actions() > 1 {
		errors = append(errors, fmt.Errorf("'--get', '--put', '--stat', '--check-update' and '--send-inventory' are mutually exclusive"))
	}

	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		errors = append(errors, fmt.Errorf("'--tls-cert' and '--tls-key' must be given together"))
	}

	errors = append(errors, validateChunking(cfg.ChunkSize, cfg.BatchSize)...)

	return errors
}

func (cfg *Console) actions() int {
	n := 0
	for _, set := range []bool{cfg.Get != "", cfg.Put != "", cfg.Stat != "", cfg.CheckUpdate, cfg.SendInventory} {
		if set {
			n++
		}
	}
	return n
}

// Interactive reports whether the console opens a remote shell.
func (cfg *Console) Interactive() bool {
	return cfg.actions() == 0
}
