package engine

import (
	"time"

	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/notifier"
)

// Option configures a ProductionLine
type Option func(*ProductionLine)

// WithLogger sets the line logger
func WithLogger(log logger.Logger) Option {
	return func(l *ProductionLine) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithSink sets the event sink. Without it events go to a LogSink over the
// line logger.
func WithSink(sink notifier.Sink) Option {
	return func(l *ProductionLine) {
		l.sink = sink
	}
}

// WithProcessingTime sets the simulated latency of each machine
func WithProcessingTime(d time.Duration) Option {
	return func(l *ProductionLine) {
		if d >= 0 {
			l.latency = d
		}
	}
}

// WithRunID sets the run identifier attached to worker contexts and logs
func WithRunID(runID string) Option {
	return func(l *ProductionLine) {
		l.runID = runID
	}
}
