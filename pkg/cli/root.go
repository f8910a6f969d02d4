// Package cli provides the prodline command-line interface
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/prodline/prodline/pkg/config"
	"github.com/prodline/prodline/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PRODLINE_MACHINES
const EnvPrefix = "PRODLINE"

// CLI holds the command tree and its dependencies. Nothing is global, so
// tests can build as many independent instances as they need.
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	logger   logger.Logger
	output   io.Writer
	errorOut io.Writer
	captured bool
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &CLI{
		config:   cfg,
		viper:    viper.New(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}

	c.viper.SetEnvPrefix(EnvPrefix)
	c.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.viper.AutomaticEnv()

	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI writing to the given writers (for testing).
// Logs go to errorOut without colors.
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(cfg)
	c.output = output
	c.errorOut = errorOut
	c.captured = true
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

// ExecuteWithVersion runs the CLI on os.Args
func ExecuteWithVersion(version string) error {
	cfg := NewConfig()
	cfg.Version = version
	return NewCLI(cfg).Execute(os.Args[1:])
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "prodline",
		Short: "Simulate a production line of machines serving prioritized orders",
		Long: `🏭 prodline - a production line simulator

Orders with a priority are queued and served by a pool of machines, one
worker per machine. Machines can break down and be repaired while the line
runs; orders that find no working machine wait for one.`,

		SilenceUsage:      true,
		PersistentPreRunE: c.initializeConfig,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("🏭 prodline v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
	c.rootCmd.AddCommand(c.newValidateCmd())
	c.rootCmd.AddCommand(c.newStatusCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "scenario file (default: "+config.DefaultConfigFile+")")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", c.config.Verbosity, "log level (debug, info, warn, error)")
	flags.StringVar(&c.config.LogFile, "log-file", "", "also append logs to this file")
	flags.BoolVar(&c.config.NoColor, "no-color", false, "disable colored output")
	flags.StringVar(&c.config.StateDir, "state-dir", "", "record run status files in this directory")

	for _, name := range []string{"config", "verbosity", "log-file", "no-color", "state-dir"} {
		c.viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initializeConfig resolves global settings from flags and PRODLINE_* env
// vars, then builds the logger
func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	c.config.ConfigFile = c.viper.GetString("config")
	c.config.Verbosity = c.viper.GetString("verbosity")
	c.config.LogFile = c.viper.GetString("log-file")
	c.config.NoColor = c.viper.GetBool("no-color")
	c.config.StateDir = c.viper.GetString("state-dir")

	if c.config.NoColor {
		color.NoColor = true
	}

	if c.captured {
		c.logger = logger.CreateLoggerWithOutput(c.config.LogFile, c.config.Verbosity, c.errorOut)
	} else {
		c.logger = logger.CreateLogger(c.config.LogFile, c.config.Verbosity)
	}

	c.logger.Debug("CLI initialized",
		logger.WithField("command", cmd.Name()),
		logger.WithField("config", c.config.ConfigFile))
	return nil
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c.printf("🏭 prodline v%s\n", c.config.Version)
		},
	}
}

func (c *CLI) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.output, format, args...)
}
