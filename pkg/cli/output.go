package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prodline/prodline/pkg/types"
)

type statsReport struct {
	types.LineStats
	Elapsed string `json:"elapsed"`
}

func (c *CLI) printStats(stats types.LineStats, elapsed time.Duration, format string) error {
	if format == "json" {
		enc := json.NewEncoder(c.output)
		enc.SetIndent("", "  ")
		return enc.Encode(statsReport{LineStats: stats, Elapsed: elapsed.Round(time.Millisecond).String()})
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MACHINE\tSTATUS\tPROCESSED")
	fmt.Fprintln(w, "-------\t------\t---------")

	for _, m := range stats.Machines {
		status := color.GreenString("operational")
		if !m.Operational {
			status = color.RedString("broken")
		}
		fmt.Fprintf(w, "%d\t%s\t%d\n", m.ID, status, m.Processed)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	abandoned := fmt.Sprintf("%d", stats.Abandoned)
	if stats.Abandoned > 0 {
		abandoned = color.YellowString(abandoned)
	}

	fmt.Fprintf(c.output, "\nsubmitted %d, processed %d, requeued %d, aborted %d, abandoned %s in %s\n",
		stats.Submitted, stats.Processed, stats.Requeued, stats.Aborted, abandoned,
		elapsed.Round(time.Millisecond))
	return nil
}
