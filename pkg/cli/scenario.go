package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/prodline/prodline/pkg/config"
	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/types"
	"github.com/spf13/cobra"
)

// scenarioPath returns the scenario file to use and whether it exists. An
// explicit --config must exist; the default file is optional.
func (c *CLI) scenarioPath() (string, bool, error) {
	if c.config.ConfigFile != "" {
		if _, err := os.Stat(c.config.ConfigFile); err != nil {
			return "", false, fmt.Errorf("scenario file: %w", err)
		}
		return c.config.ConfigFile, true, nil
	}

	if _, err := os.Stat(config.DefaultConfigFile); err == nil {
		return config.DefaultConfigFile, true, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("scenario file: %w", err)
	}
	return "", false, nil
}

// loadScenario loads the scenario file, or the built-in demo when there is
// none. The returned path is empty for the demo.
func (c *CLI) loadScenario() (*types.LineConfig, string, error) {
	path, ok, err := c.scenarioPath()
	if err != nil {
		return nil, "", err
	}

	manager := config.NewManager()
	if !ok {
		c.logger.Info("No scenario file found, running the built-in demo")
		return manager.GetDefaultConfig(), "", nil
	}

	cfg, err := manager.LoadConfig(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load scenario: %w", err)
	}
	c.logger.Debug("Loaded scenario", logger.WithField("path", path))
	return cfg, path, nil
}

func (c *CLI) newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the demo scenario to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.config.ConfigFile
			if path == "" {
				path = config.DefaultConfigFile
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			manager := config.NewManager()
			if err := manager.SaveConfig(path, manager.GetDefaultConfig()); err != nil {
				return err
			}

			c.logger.Success("Scenario written", logger.WithField("path", path))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func (c *CLI) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a scenario file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok, err := c.scenarioPath()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no scenario file: pass --config or create %s", config.DefaultConfigFile)
			}

			cfg, err := config.NewManager().LoadConfig(path)
			if err != nil {
				c.logger.Error("Scenario is invalid", logger.WithField("error", err))
				return err
			}

			c.printf("✓ %s: %d machines, %d orders, %d faults\n",
				path, cfg.Machines, len(cfg.Orders), len(cfg.Faults))
			return nil
		},
	}
}
