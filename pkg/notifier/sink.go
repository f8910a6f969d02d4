// Package notifier delivers line events to observers: logs, desktop
// notifications, and in-memory recorders for tests
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/types"
)

//go:generate mockgen -destination=../mocks/mock_sink.go -package=mocks github.com/prodline/prodline/pkg/notifier Sink

// Sink receives line events. Implementations must be safe for concurrent use;
// Emit is called from worker goroutines.
type Sink interface {
	Emit(event types.Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(event types.Event)

// Emit implements Sink
func (f SinkFunc) Emit(event types.Event) { f(event) }

// Nop discards events
var Nop Sink = SinkFunc(func(types.Event) {})

// Multi fans an event out to several sinks in order
type Multi []Sink

// Emit implements Sink
func (m Multi) Emit(event types.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(event)
		}
	}
}

// LogSink writes events to a logger
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a sink that logs every event
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Emit implements Sink
func (s *LogSink) Emit(event types.Event) {
	fields := []logger.Field{}
	if event.MachineID > 0 {
		fields = append(fields, logger.WithField("machine", event.MachineID))
	}
	if event.WorkerID > 0 {
		fields = append(fields, logger.WithField("worker", event.WorkerID))
	}
	if event.HasOrder() {
		fields = append(fields,
			logger.WithField("order", event.Order.ID),
			logger.WithField("priority", event.Order.Priority))
	}
	if event.Duration > 0 {
		fields = append(fields, logger.WithField("duration", event.Duration))
	}

	switch event.Type {
	case types.EventOrderProcessing:
		s.logger.Info("Machine processing order", fields...)
	case types.EventOrderProcessed:
		s.logger.Success("Order processed", fields...)
	case types.EventMachineDown:
		s.logger.Warn("Machine out of service", fields...)
	case types.EventMachineRepaired:
		s.logger.Success("Machine repaired", fields...)
	case types.EventOrderRequeued:
		s.logger.Warn("No operational machine, order requeued", fields...)
	case types.EventOrderAbandoned:
		s.logger.Error("Order abandoned at shutdown", fields...)
	case types.EventOrderAborted:
		s.logger.Warn("Order aborted mid-processing", fields...)
	case types.EventLineStarted:
		s.logger.Info("Production line started", fields...)
	case types.EventLineStopped:
		s.logger.Info("Production line stopped", fields...)
	default:
		msg := string(event.Type)
		if event.Message != "" {
			msg = event.Message
		}
		s.logger.Debug(msg, fields...)
	}
}

// Recorder keeps every event in memory. Tests use it to assert on what the
// line emitted instead of parsing console output.
type Recorder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []types.Event
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Emit implements Sink
func (r *Recorder) Emit(event types.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Events returns a copy of all recorded events
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of the given type, in emission order
func (r *Recorder) OfType(eventType types.EventType) []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of the given type were recorded
func (r *Recorder) Count(eventType types.EventType) int {
	return len(r.OfType(eventType))
}

// OrderIDs returns the order ids of the events of the given type
func (r *Recorder) OrderIDs(eventType types.EventType) []int {
	events := r.OfType(eventType)
	ids := make([]int, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.Order.ID)
	}
	return ids
}

// WaitFor blocks until at least n events of the given type have been
// recorded or the timeout elapses. It reports whether the count was reached.
func (r *Recorder) WaitFor(eventType types.EventType, n int, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cond.Broadcast()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.countLocked(eventType) < n {
		if ctx.Err() != nil {
			return false
		}
		r.cond.Wait()
	}
	return true
}

func (r *Recorder) countLocked(eventType types.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// Reset drops all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
