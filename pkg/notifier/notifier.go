package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/types"
)

// DesktopNotifier raises desktop notifications for machine faults and repairs
type DesktopNotifier struct {
	enabled     bool
	beepOnFault bool
	logger      logger.Logger
	send        func(title, message string) error
	beep        func() error
}

// Config represents notification configuration
type Config struct {
	Enabled     bool
	BeepOnFault bool
}

// New creates a new desktop notifier
func New(config Config, log logger.Logger) *DesktopNotifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &DesktopNotifier{
		enabled:     config.Enabled,
		beepOnFault: config.BeepOnFault,
		logger:      log,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
}

// Emit implements Sink
func (n *DesktopNotifier) Emit(event types.Event) {
	switch event.Type {
	case types.EventMachineDown:
		n.NotifyMachineDown(event.MachineID)
	case types.EventMachineRepaired:
		n.NotifyMachineRepaired(event.MachineID)
	case types.EventOrderAbandoned:
		n.NotifyOrderAbandoned(event.Order)
	}
}

// NotifyMachineDown notifies that a machine broke down
func (n *DesktopNotifier) NotifyMachineDown(machineID int) {
	if !n.enabled {
		return
	}

	n.sendNotification("⚠️ Machine Down", fmt.Sprintf("Machine %d is out of service", machineID))

	if n.beepOnFault {
		if err := n.beep(); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithField("error", err))
		}
	}
}

// NotifyMachineRepaired notifies that a machine is back in service
func (n *DesktopNotifier) NotifyMachineRepaired(machineID int) {
	if !n.enabled {
		return
	}
	n.sendNotification("✅ Machine Repaired", fmt.Sprintf("Machine %d is operational again", machineID))
}

// NotifyOrderAbandoned notifies that an order was left unprocessed at shutdown
func (n *DesktopNotifier) NotifyOrderAbandoned(order types.Order) {
	if !n.enabled {
		return
	}
	n.sendNotification("❌ Order Abandoned", fmt.Sprintf("%s was not processed", order))
}

// NotifyLineSummary reports the final counters of a run
func (n *DesktopNotifier) NotifyLineSummary(stats types.LineStats, elapsed time.Duration) {
	if !n.enabled {
		return
	}
	n.sendNotification("🏭 Production Line",
		fmt.Sprintf("%d/%d orders processed in %s", stats.Processed, stats.Submitted, formatDuration(elapsed)))
}

func (n *DesktopNotifier) sendNotification(title, message string) {
	if err := n.send(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
