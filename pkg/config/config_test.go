package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodline/prodline/pkg/config"
	"github.com/prodline/prodline/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "prodline.yaml", `
version: "1.0"
machines: 3
processingTime: 250
brokenMachines: [2]
orders:
  - {id: 1, priority: 2}
  - {id: 2, priority: 1}
faults:
  - {machine: 2, at: 500, action: repair}
logging:
  level: debug
`)

	cfg, err := config.NewManager().LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Machines)
	assert.Equal(t, 250, cfg.ProcessingTime)
	assert.Equal(t, []int{2}, cfg.BrokenMachines)
	assert.Equal(t, []types.Order{{ID: 1, Priority: 2}, {ID: 2, Priority: 1}}, cfg.Orders)
	require.Len(t, cfg.Faults, 1)
	assert.Equal(t, types.FaultActionRepair, cfg.Faults[0].Action)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]interface{}{
		"version":  "1.0",
		"machines": 2,
		"orders":   []map[string]int{{"id": 7, "priority": 1}},
	})
	require.NoError(t, err)
	path := writeFile(t, "scenario.json", string(data))

	cfg, err := config.NewManager().LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Machines)
	assert.Equal(t, config.DefaultProcessingTime, cfg.ProcessingTime)
	assert.Equal(t, []types.Order{{ID: 7, Priority: 1}}, cfg.Orders)
}

func TestLoadConfig_YAMLWithoutExtension(t *testing.T) {
	path := writeFile(t, "scenario", "machines: 5\n")

	cfg, err := config.NewManager().LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Machines)
	assert.Equal(t, config.CurrentVersion, cfg.Version)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := config.NewManager().LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "bad.yaml", "machines: [not, a, number]\n")
	_, err = config.NewManager().LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *types.LineConfig {
		return &types.LineConfig{Version: "1.0", Machines: 4, ProcessingTime: 10}
	}

	tests := []struct {
		name   string
		mutate func(*types.LineConfig)
	}{
		{"unsupported version", func(c *types.LineConfig) { c.Version = "2.0" }},
		{"no machines", func(c *types.LineConfig) { c.Machines = 0 }},
		{"negative processing time", func(c *types.LineConfig) { c.ProcessingTime = -1 }},
		{"negative run time", func(c *types.LineConfig) { c.RunFor = -5 }},
		{"broken machine out of range", func(c *types.LineConfig) { c.BrokenMachines = []int{5} }},
		{"fault machine out of range", func(c *types.LineConfig) {
			c.Faults = []types.FaultEvent{{Machine: 0, At: 1, Action: types.FaultActionBreak}}
		}},
		{"fault negative time", func(c *types.LineConfig) {
			c.Faults = []types.FaultEvent{{Machine: 1, At: -1, Action: types.FaultActionBreak}}
		}},
		{"fault unknown action", func(c *types.LineConfig) {
			c.Faults = []types.FaultEvent{{Machine: 1, At: 1, Action: "explode"}}
		}},
		{"unknown log level", func(c *types.LineConfig) { c.Logging = &types.LoggingConfig{Level: "loud"} }},
	}

	m := config.NewManager()
	require.NoError(t, m.ValidateConfig(valid()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, m.ValidateConfig(cfg), config.ErrInvalidConfig)
		})
	}
}

func TestGetDefaultConfig(t *testing.T) {
	m := config.NewManager()
	cfg := m.GetDefaultConfig()

	require.NoError(t, m.ValidateConfig(cfg))
	assert.Equal(t, 4, cfg.Machines)
	assert.Len(t, cfg.Orders, 8)
	assert.Equal(t, types.Order{ID: 2, Priority: 1}, cfg.Orders[1])
	assert.Equal(t, []types.FaultEvent{
		{Machine: 2, At: 2000, Action: types.FaultActionBreak},
		{Machine: 2, At: 5000, Action: types.FaultActionRepair},
	}, cfg.Faults)
	assert.False(t, cfg.NotificationsEnabled())
}

func TestSaveConfig_RoundTripsThroughLoad(t *testing.T) {
	m := config.NewManager()
	dir := t.TempDir()

	for _, name := range []string{"prodline.yaml", "prodline.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, m.SaveConfig(path, m.GetDefaultConfig()))

			loaded, err := m.LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, m.GetDefaultConfig().Orders, loaded.Orders)
			assert.Equal(t, m.GetDefaultConfig().Faults, loaded.Faults)
		})
	}
}
