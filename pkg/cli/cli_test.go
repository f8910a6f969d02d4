package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodline/prodline/pkg/cli"
	"github.com/prodline/prodline/pkg/types"
)

type report struct {
	types.LineStats
	Elapsed string `json:"elapsed"`
}

func newTestCLI() (*cli.CLI, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cfg := cli.NewConfig()
	cfg.Version = "1.2.3"
	return cli.NewCLIWithOutput(cfg, &out, &errOut), &out, &errOut
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const smallScenario = `
machines: 2
processingTime: 1
orders:
  - {id: 1, priority: 2}
  - {id: 2, priority: 1}
  - {id: 3, priority: 3}
  - {id: 4, priority: 1}
  - {id: 5, priority: 2}
`

func TestVersionCommand(t *testing.T) {
	c, out, _ := newTestCLI()

	require.NoError(t, c.Execute([]string{"version"}))
	assert.Contains(t, out.String(), "prodline v1.2.3")
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodline.yaml")

	c, _, errOut := newTestCLI()
	require.NoError(t, c.Execute([]string{"init", "--config", path}))
	assert.FileExists(t, path)
	assert.Contains(t, errOut.String(), "Scenario written")

	c, _, _ = newTestCLI()
	err := c.Execute([]string{"init", "--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	c, _, _ = newTestCLI()
	assert.NoError(t, c.Execute([]string{"init", "--config", path, "--force"}))
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid scenario", func(t *testing.T) {
		c, out, _ := newTestCLI()
		path := writeScenario(t, smallScenario)

		require.NoError(t, c.Execute([]string{"validate", "--config", path}))
		assert.Contains(t, out.String(), "2 machines, 5 orders, 0 faults")
	})

	t.Run("invalid scenario", func(t *testing.T) {
		c, _, errOut := newTestCLI()
		path := writeScenario(t, "version: \"2.0\"\n")

		assert.Error(t, c.Execute([]string{"validate", "--config", path}))
		assert.Contains(t, errOut.String(), "Scenario is invalid")
	})

	t.Run("missing file", func(t *testing.T) {
		c, _, _ := newTestCLI()
		assert.Error(t, c.Execute([]string{"validate", "--config", filepath.Join(t.TempDir(), "nope.yaml")}))
	})
}

func TestRunCommand_Table(t *testing.T) {
	c, out, _ := newTestCLI()
	path := writeScenario(t, smallScenario)

	require.NoError(t, c.Execute([]string{"run", "--config", path}))

	assert.Contains(t, out.String(), "MACHINE")
	assert.Contains(t, out.String(), "submitted 5, processed 5")
	assert.Contains(t, out.String(), "abandoned 0")
}

func runJSON(t *testing.T, c *cli.CLI, out *bytes.Buffer, args ...string) report {
	t.Helper()
	require.NoError(t, c.Execute(append(args, "--output", "json")))

	var r report
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	return r
}

func TestRunCommand_JSON(t *testing.T) {
	c, out, _ := newTestCLI()
	path := writeScenario(t, smallScenario)

	r := runJSON(t, c, out, "run", "--config", path)

	assert.EqualValues(t, 5, r.Submitted)
	assert.EqualValues(t, 5, r.Processed)
	assert.Len(t, r.Machines, 2)
	assert.False(t, r.Running)
	assert.NotEmpty(t, r.Elapsed)
}

func TestRunCommand_FlagOverridesScenario(t *testing.T) {
	c, out, _ := newTestCLI()
	path := writeScenario(t, smallScenario)

	r := runJSON(t, c, out, "run", "--config", path, "--machines", "3", "--processing-time", "2ms")

	assert.Len(t, r.Machines, 3)
	assert.EqualValues(t, 5, r.Processed)
}

func TestRunCommand_EnvOverridesScenario(t *testing.T) {
	t.Setenv("PRODLINE_MACHINES", "1")
	c, out, _ := newTestCLI()
	path := writeScenario(t, smallScenario)

	r := runJSON(t, c, out, "run", "--config", path)

	require.Len(t, r.Machines, 1)
	assert.EqualValues(t, 5, r.Machines[0].Processed)
}

func TestRunCommand_AllMachinesBrokenAbandonsOrders(t *testing.T) {
	c, out, _ := newTestCLI()
	path := writeScenario(t, `
machines: 1
processingTime: 1
brokenMachines: [1]
orders:
  - {id: 1, priority: 1}
  - {id: 2, priority: 1}
`)

	r := runJSON(t, c, out, "run", "--config", path, "--run-for", "50ms", "--shutdown-timeout", "1s")

	assert.EqualValues(t, 0, r.Processed)
	assert.EqualValues(t, 2, r.Abandoned)
	assert.False(t, r.Machines[0].Operational)
}

func TestRunCommand_AllBrokenWithoutRepairDoesNotHang(t *testing.T) {
	c, out, errOut := newTestCLI()
	path := writeScenario(t, `
machines: 2
processingTime: 1
brokenMachines: [1, 2]
orders:
  - {id: 1, priority: 1}
  - {id: 2, priority: 2}
`)

	r := runJSON(t, c, out, "run", "--config", path, "--shutdown-timeout", "1s")

	assert.EqualValues(t, 0, r.Processed)
	assert.EqualValues(t, 2, r.Abandoned)
	assert.Contains(t, errOut.String(), "no repair scheduled")
}

func TestRunCommand_ScheduledRepair(t *testing.T) {
	c, out, _ := newTestCLI()
	path := writeScenario(t, `
machines: 1
processingTime: 1
runFor: 300
brokenMachines: [1]
orders:
  - {id: 1, priority: 1}
faults:
  - {machine: 1, at: 30, action: repair}
`)

	r := runJSON(t, c, out, "run", "--config", path)

	assert.EqualValues(t, 1, r.Processed)
	assert.True(t, r.Machines[0].Operational)
}

func TestRunCommand_UnknownOutput(t *testing.T) {
	c, _, _ := newTestCLI()
	path := writeScenario(t, smallScenario)

	err := c.Execute([]string{"run", "--config", path, "--output", "xml"})
	assert.ErrorContains(t, err, "unknown output format")
}

func TestRunCommand_InvalidOverride(t *testing.T) {
	c, _, _ := newTestCLI()
	path := writeScenario(t, smallScenario+"brokenMachines: [2]\n")

	err := c.Execute([]string{"run", "--config", path, "--machines", "1"})
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "runs")
	path := writeScenario(t, smallScenario)

	c, _, _ := newTestCLI()
	require.NoError(t, c.Execute([]string{"run", "--config", path, "--state-dir", stateDir}))

	c, out, _ := newTestCLI()
	require.NoError(t, c.Execute([]string{"status", "--state-dir", stateDir}))

	assert.Contains(t, out.String(), "run_")
	assert.Contains(t, out.String(), "stopped")
	assert.Contains(t, out.String(), "5/5")
}

func TestStatusCommand_Empty(t *testing.T) {
	c, out, _ := newTestCLI()

	require.NoError(t, c.Execute([]string{"status", "--state-dir", t.TempDir()}))
	assert.Contains(t, out.String(), "No recorded runs")
}
