// Package config loads, validates and writes production line scenarios
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prodline/prodline/pkg/types"
	"gopkg.in/yaml.v3"
)

const (
	// CurrentVersion is the only scenario format version understood
	CurrentVersion = "1.0"

	// DefaultConfigFile is the scenario file looked up when none is given
	DefaultConfigFile = "prodline.yaml"

	// DefaultMachines is used when a scenario leaves machines unset
	DefaultMachines = 4

	// DefaultProcessingTime is the per-order latency in milliseconds
	DefaultProcessingTime = 1000
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig reads a scenario file, fills defaults and validates it. YAML is
// chosen by extension; anything else is tried as JSON first, then YAML.
func (m *Manager) LoadConfig(path string) (*types.LineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := m.Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes scenario bytes. ext is a file extension hint such as ".yaml".
func (m *Manager) Parse(data []byte, ext string) (*types.LineConfig, error) {
	var cfg types.LineConfig

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			if yerr := yaml.Unmarshal(data, &cfg); yerr != nil {
				return nil, fmt.Errorf("failed to parse config as JSON or YAML: %w", err)
			}
		}
	}

	m.ApplyDefaults(&cfg)
	if err := m.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with defaults
func (m *Manager) ApplyDefaults(cfg *types.LineConfig) {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Machines == 0 {
		cfg.Machines = DefaultMachines
	}
	if cfg.ProcessingTime == 0 {
		cfg.ProcessingTime = DefaultProcessingTime
	}
}

// ValidateConfig checks a scenario for consistency
func (m *Manager) ValidateConfig(cfg *types.LineConfig) error {
	if cfg.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported config version: %s", ErrInvalidConfig, cfg.Version)
	}
	if cfg.Machines < 1 {
		return fmt.Errorf("%w: machines must be at least 1, got %d", ErrInvalidConfig, cfg.Machines)
	}
	if cfg.ProcessingTime < 0 {
		return fmt.Errorf("%w: processingTime must not be negative", ErrInvalidConfig)
	}
	if cfg.RunFor < 0 {
		return fmt.Errorf("%w: runFor must not be negative", ErrInvalidConfig)
	}

	for _, id := range cfg.BrokenMachines {
		if id < 1 || id > cfg.Machines {
			return fmt.Errorf("%w: broken machine %d outside [1, %d]", ErrInvalidConfig, id, cfg.Machines)
		}
	}

	for i, f := range cfg.Faults {
		if f.Machine < 1 || f.Machine > cfg.Machines {
			return fmt.Errorf("%w: fault %d: machine %d outside [1, %d]", ErrInvalidConfig, i, f.Machine, cfg.Machines)
		}
		if f.At < 0 {
			return fmt.Errorf("%w: fault %d: negative time", ErrInvalidConfig, i)
		}
		if f.Action != types.FaultActionBreak && f.Action != types.FaultActionRepair {
			return fmt.Errorf("%w: fault %d: unknown action %q", ErrInvalidConfig, i, f.Action)
		}
	}

	if cfg.Logging != nil && cfg.Logging.Level != "" {
		switch strings.ToLower(cfg.Logging.Level) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, cfg.Logging.Level)
		}
	}

	return nil
}

// SaveConfig writes cfg to path as YAML or JSON depending on the extension
func (m *Manager) SaveConfig(path string, cfg *types.LineConfig) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfig returns the demo scenario: four machines, eight orders,
// machine 2 breaking at 2s and coming back at 5s, stopping at 6s
func (m *Manager) GetDefaultConfig() *types.LineConfig {
	disabled := false

	return &types.LineConfig{
		Version:        CurrentVersion,
		Machines:       DefaultMachines,
		ProcessingTime: DefaultProcessingTime,
		RunFor:         6000,
		Orders: []types.Order{
			{ID: 1, Priority: 2},
			{ID: 2, Priority: 1},
			{ID: 3, Priority: 3},
			{ID: 4, Priority: 1},
			{ID: 5, Priority: 3},
			{ID: 6, Priority: 3},
			{ID: 7, Priority: 3},
			{ID: 8, Priority: 1},
		},
		Faults: []types.FaultEvent{
			{Machine: 2, At: 2000, Action: types.FaultActionBreak},
			{Machine: 2, At: 5000, Action: types.FaultActionRepair},
		},
		Logging: &types.LoggingConfig{
			Level: "info",
		},
		Notifications: &types.NotificationConfig{
			Enabled: &disabled,
		},
	}
}
