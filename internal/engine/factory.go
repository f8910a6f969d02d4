package engine

import (
	"fmt"

	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/notifier"
	"github.com/prodline/prodline/pkg/types"
)

// DependencyFactory assembles a line and its sinks from a scenario config
type DependencyFactory struct {
	config *types.LineConfig
	logger logger.Logger
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(config *types.LineConfig, log logger.Logger) *DependencyFactory {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &DependencyFactory{
		config: config,
		logger: log,
	}
}

// CreateSink builds the default sink chain: a log sink, then the desktop
// notifier when notifications are enabled, then any extra sinks.
func (f *DependencyFactory) CreateSink(extra ...notifier.Sink) notifier.Sink {
	sinks := notifier.Multi{notifier.NewLogSink(f.logger.WithComponent("events"))}

	if f.config.NotificationsEnabled() {
		sinks = append(sinks, f.CreateNotifier())
	}

	return append(sinks, extra...)
}

// CreateNotifier creates the desktop notifier for machine faults
func (f *DependencyFactory) CreateNotifier() *notifier.DesktopNotifier {
	return notifier.New(notifier.Config{
		Enabled:     f.config.NotificationsEnabled(),
		BeepOnFault: true,
	}, f.logger.WithComponent("notifier"))
}

// CreateLine builds a line from the config with initial machine faults
// applied. Orders are not submitted.
func (f *DependencyFactory) CreateLine(extra ...notifier.Sink) (*ProductionLine, error) {
	if f.config == nil {
		return nil, fmt.Errorf("line config is required")
	}

	line, err := New(f.config.Machines,
		WithLogger(f.logger.WithComponent("line")),
		WithSink(f.CreateSink(extra...)),
		WithProcessingTime(f.config.ProcessingDuration()),
	)
	if err != nil {
		return nil, err
	}

	if len(f.config.BrokenMachines) > 0 {
		if err := line.ApplyFaults(f.config.BrokenMachines); err != nil {
			return nil, fmt.Errorf("applying initial faults: %w", err)
		}
	}

	return line, nil
}

// NewFromConfig is a shortcut for NewDependencyFactory(cfg, log).CreateLine
func NewFromConfig(cfg *types.LineConfig, log logger.Logger, extra ...notifier.Sink) (*ProductionLine, error) {
	return NewDependencyFactory(cfg, log).CreateLine(extra...)
}
