package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prodline/prodline/internal/state"
	"github.com/spf13/cobra"
)

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show runs recorded with --state-dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := c.config.StateDir
			if dir == "" {
				dir = DefaultStateDir
			}

			states, err := state.NewStateManager(dir, c.logger).DiscoverStates()
			if err != nil {
				return fmt.Errorf("failed to discover runs: %w", err)
			}
			if len(states) == 0 {
				c.printf("No recorded runs in %s\n", dir)
				return nil
			}

			return c.printRuns(states)
		},
	}
}

func (c *CLI) printRuns(states []*state.RunState) error {
	now := time.Now()

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tPROCESSED\tPENDING\tABANDONED")
	fmt.Fprintln(w, "---\t------\t-------\t---------\t-------\t---------")

	for _, s := range states {
		status := string(s.Status)
		switch {
		case s.IsStale(now):
			status = color.YellowString("stale")
		case s.Status == state.RunStatusRunning:
			status = color.CyanString(status)
		case s.Status == state.RunStatusFailed:
			status = color.RedString(status)
		default:
			status = color.GreenString(status)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\n",
			s.RunID,
			status,
			s.StartedAt.Format("15:04:05"),
			s.Stats.Processed,
			s.Stats.Submitted,
			s.Stats.Pending,
			s.Stats.Abandoned,
		)
	}

	return w.Flush()
}
