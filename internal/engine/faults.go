package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/types"
)

// ScheduleFaults arms a timer per fault, relative to now. Faults firing after
// ctx is done are skipped. The returned function disarms pending timers.
func (l *ProductionLine) ScheduleFaults(ctx context.Context, faults []types.FaultEvent) func() {
	timers := make([]*time.Timer, 0, len(faults))
	for _, fault := range faults {
		delay := time.Duration(fault.At) * time.Millisecond
		timers = append(timers, time.AfterFunc(delay, func() {
			if ctx.Err() != nil {
				return
			}
			if err := l.ApplyFault(fault); err != nil {
				l.logger.Warn("Scheduled fault failed",
					logger.WithField("machine", fault.Machine),
					logger.WithField("action", fault.Action),
					logger.WithField("error", err))
			}
		}))
	}

	return func() {
		for _, t := range timers {
			t.Stop()
		}
	}
}

// ApplyFault performs a single break or repair
func (l *ProductionLine) ApplyFault(fault types.FaultEvent) error {
	switch fault.Action {
	case types.FaultActionBreak:
		return l.BreakMachine(fault.Machine)
	case types.FaultActionRepair:
		return l.RepairMachine(fault.Machine)
	default:
		return fmt.Errorf("unknown fault action %q", fault.Action)
	}
}
