package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prodline/prodline/internal/engine"
	"github.com/prodline/prodline/internal/state"
	"github.com/prodline/prodline/pkg/config"
	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/types"
	"github.com/spf13/cobra"
)

func (c *CLI) newRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario and print line statistics",
		Long: `Run loads a scenario (machines, processing time, orders and timed
machine faults), submits its orders and runs the line. Without a run time the
line stops once every order has been processed.

Flags and PRODLINE_* environment variables override the scenario file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.resolveRunOptions(opts)
			return c.runScenario(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.Machines, "machines", "m", 0, "number of machines")
	flags.DurationVar(&opts.ProcessingTime, "processing-time", 0, "time to process one order")
	flags.DurationVar(&opts.RunFor, "run-for", 0, "stop the line after this long")
	flags.DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", DefaultShutdownTimeout, "how long to wait for queued orders at stop")
	flags.BoolVarP(&opts.Watch, "watch", "w", false, "reload the scenario file and apply machine faults on change")
	flags.StringVarP(&opts.Output, "output", "o", "table", "stats format (table, json)")

	for _, name := range []string{"machines", "processing-time", "run-for", "shutdown-timeout", "watch", "output"} {
		c.viper.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

// resolveRunOptions lets PRODLINE_* env vars fill flags left unset
func (c *CLI) resolveRunOptions(opts *RunOptions) {
	opts.Machines = c.viper.GetInt("machines")
	opts.ProcessingTime = c.viper.GetDuration("processing-time")
	opts.RunFor = c.viper.GetDuration("run-for")
	opts.ShutdownTimeout = c.viper.GetDuration("shutdown-timeout")
	opts.Watch = c.viper.GetBool("watch")
	opts.Output = c.viper.GetString("output")
}

func applyOverrides(cfg *types.LineConfig, opts *RunOptions) {
	if opts.Machines > 0 {
		cfg.Machines = opts.Machines
	}
	if opts.ProcessingTime > 0 {
		cfg.ProcessingTime = int(opts.ProcessingTime / time.Millisecond)
	}
	if opts.RunFor > 0 {
		cfg.RunFor = int(opts.RunFor / time.Millisecond)
	}
}

func (c *CLI) runScenario(ctx context.Context, opts *RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Output != "table" && opts.Output != "json" {
		return fmt.Errorf("unknown output format %q", opts.Output)
	}

	cfg, path, err := c.loadScenario()
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts)
	if err := config.NewManager().ValidateConfig(cfg); err != nil {
		return err
	}
	c.applyLogLevel(cfg)

	factory := engine.NewDependencyFactory(cfg, c.logger)
	line, err := factory.CreateLine()
	if err != nil {
		return err
	}

	for _, order := range cfg.Orders {
		if err := line.Submit(order); err != nil {
			return fmt.Errorf("submitting %s: %w", order, err)
		}
	}

	start := time.Now()
	if err := line.Start(ctx); err != nil {
		return err
	}

	waitCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	disarm := line.ScheduleFaults(waitCtx, cfg.Faults)
	defer disarm()

	recorder := c.recordRun(waitCtx, line, path)

	watching := false
	if opts.Watch {
		if path == "" {
			c.logger.Warn("Nothing to watch without a scenario file")
		} else {
			reloader := c.watchScenario(path, line)
			if reloader != nil {
				watching = true
				defer reloader.Stop()
			}
		}
	}

	if cfg.RunDuration() == 0 && !watching && !canDrain(line, cfg.Faults) {
		c.logger.Warn("No operational machine and no repair scheduled, stopping line",
			logger.WithField("pending", line.Stats().Pending))
	} else {
		c.awaitCompletion(waitCtx, line, cfg.RunDuration())
	}
	disarm()

	stopCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	stopErr := line.Stop(stopCtx)
	elapsed := time.Since(start)

	stats := line.Stats()
	if recorder != nil {
		if err := recorder.Finish(stats, stopErr); err != nil {
			c.logger.Warn("Failed to record final run state", logger.WithField("error", err))
		}
	}
	if err := c.printStats(stats, elapsed, opts.Output); err != nil {
		return err
	}
	if cfg.NotificationsEnabled() {
		factory.CreateNotifier().NotifyLineSummary(stats, elapsed)
	}

	if stopErr != nil {
		return fmt.Errorf("production line failed: %w", stopErr)
	}
	return nil
}

// awaitCompletion blocks for the configured run time, or until the line is
// idle when there is none, or until interrupted
func (c *CLI) awaitCompletion(ctx context.Context, line *engine.ProductionLine, runFor time.Duration) {
	if runFor > 0 {
		timer := time.NewTimer(runFor)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			c.logger.Warn("Interrupted, stopping line")
		}
		return
	}

	if err := line.WaitIdle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("Waiting for idle line failed", logger.WithField("error", err))
	} else if err != nil {
		c.logger.Warn("Interrupted, stopping line")
	}
}

// canDrain reports whether queued orders can still be served: some machine
// is operational or a repair is scheduled
func canDrain(line *engine.ProductionLine, faults []types.FaultEvent) bool {
	for _, m := range line.Machines() {
		if m.Operational {
			return true
		}
	}
	for _, f := range faults {
		if f.Action == types.FaultActionRepair {
			return true
		}
	}
	return false
}

// recordRun writes the run state under --state-dir and keeps it fresh while
// the line runs. It returns nil when recording is off or failed to start.
func (c *CLI) recordRun(ctx context.Context, line *engine.ProductionLine, scenario string) *state.StateManager {
	if c.config.StateDir == "" {
		return nil
	}

	recorder := state.NewStateManager(c.config.StateDir, c.logger)
	if err := recorder.Begin(line.RunID(), scenario, line.Stats); err != nil {
		c.logger.Warn("Run state recording disabled", logger.WithField("error", err))
		return nil
	}
	recorder.StartHeartbeat(ctx, state.DefaultHeartbeat)
	return recorder
}

// watchScenario reconciles broken machines and the log level whenever the
// scenario file changes
func (c *CLI) watchScenario(path string, line *engine.ProductionLine) *config.ReloadManager {
	reloader := config.NewReloadManager(path, c.logger)
	reloader.OnReload(func(cfg *types.LineConfig, err error) {
		if err != nil {
			c.logger.Warn("Ignoring scenario change", logger.WithField("error", err))
			return
		}
		if err := line.ApplyFaults(cfg.BrokenMachines); err != nil {
			c.logger.Warn("Could not apply machine faults", logger.WithField("error", err))
			return
		}
		c.applyLogLevel(cfg)
		c.logger.Info("Machine faults reconciled", logger.WithField("broken", cfg.BrokenMachines))
	})

	if err := reloader.Start(); err != nil {
		c.logger.Warn("Scenario watching disabled", logger.WithField("error", err))
		return nil
	}
	return reloader
}

// applyLogLevel honours the scenario log level unless -v was given
func (c *CLI) applyLogLevel(cfg *types.LineConfig) {
	if cfg.Logging == nil || cfg.Logging.Level == "" {
		return
	}
	if c.rootCmd.PersistentFlags().Changed("verbosity") || os.Getenv(EnvPrefix+"_VERBOSITY") != "" {
		return
	}
	if setter, ok := c.logger.(interface{ SetLevel(string) }); ok {
		setter.SetLevel(cfg.Logging.Level)
	}
}
