package cli

import "time"

// Config holds the global CLI settings bound to persistent flags
type Config struct {
	ConfigFile string
	Verbosity  string
	LogFile    string
	NoColor    bool
	StateDir   string
	Version    string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		Verbosity: "info",
		Version:   "dev",
	}
}

// RunOptions are the run command flags. Zero values leave the scenario
// settings untouched.
type RunOptions struct {
	Machines        int
	ProcessingTime  time.Duration
	RunFor          time.Duration
	ShutdownTimeout time.Duration
	Watch           bool
	Output          string
}

// DefaultStateDir is read by status when no --state-dir is given
const DefaultStateDir = ".prodline/runs"

// DefaultShutdownTimeout bounds how long run waits for the queue to drain
const DefaultShutdownTimeout = 10 * time.Second
