// Package machine models a single processing unit of the production line
package machine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	pcontext "github.com/prodline/prodline/pkg/context"
	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/notifier"
	"github.com/prodline/prodline/pkg/types"
)

// DefaultProcessingTime is the simulated latency of one order
const DefaultProcessingTime = time.Second

// Machine processes one order at a time. Its operational and busy flags are
// atomic so fault injection can race with dispatch reads safely.
type Machine struct {
	id      int
	latency time.Duration
	sink    notifier.Sink
	logger  logger.Logger

	operational atomic.Bool
	busy        atomic.Bool
	processed   atomic.Int64
}

// New creates an operational, idle machine. sink and log may be nil.
func New(id int, latency time.Duration, sink notifier.Sink, log logger.Logger) *Machine {
	if sink == nil {
		sink = notifier.Nop
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	m := &Machine{
		id:      id,
		latency: latency,
		sink:    sink,
		logger:  log.WithComponent(fmt.Sprintf("machine-%d", id)),
	}
	m.operational.Store(true)
	return m
}

// ID returns the 1-based machine identifier
func (m *Machine) ID() int { return m.id }

// IsOperational reports whether the machine accepts new orders
func (m *Machine) IsOperational() bool { return m.operational.Load() }

// IsBusy reports whether an order is currently being processed
func (m *Machine) IsBusy() bool { return m.busy.Load() }

// Processed returns how many orders the machine has completed
func (m *Machine) Processed() int64 { return m.processed.Load() }

// BreakDown takes the machine out of service. An order already in progress
// finishes normally; the change only affects later dispatch decisions.
// It reports whether the state changed.
func (m *Machine) BreakDown() bool {
	if !m.operational.CompareAndSwap(true, false) {
		return false
	}
	m.sink.Emit(types.Event{
		Type:      types.EventMachineDown,
		Timestamp: time.Now(),
		MachineID: m.id,
	})
	return true
}

// Repair returns the machine to service. It reports whether the state changed.
func (m *Machine) Repair() bool {
	if !m.operational.CompareAndSwap(false, true) {
		return false
	}
	m.sink.Emit(types.Event{
		Type:      types.EventMachineRepaired,
		Timestamp: time.Now(),
		MachineID: m.id,
	})
	return true
}

// TryAcquire claims the machine for one order. It fails when the machine is
// broken or already busy.
func (m *Machine) TryAcquire() bool {
	if !m.operational.Load() {
		return false
	}
	if !m.busy.CompareAndSwap(false, true) {
		return false
	}
	// Broke down between the two checks
	if !m.operational.Load() {
		m.busy.Store(false)
		return false
	}
	return true
}

// Release frees a machine claimed with TryAcquire
func (m *Machine) Release() {
	m.busy.Store(false)
}

// Process simulates work on order for the machine latency. The caller must
// hold the machine via TryAcquire. If ctx is cancelled before the work
// completes the order is reported as aborted and ctx.Err() is returned.
func (m *Machine) Process(ctx context.Context, workerID int, order types.Order) error {
	start := time.Now()
	ctx = pcontext.WithStartTime(ctx, start)
	log := logger.WithContext(ctx, m.logger)
	m.sink.Emit(types.Event{
		Type:      types.EventOrderProcessing,
		Timestamp: start,
		MachineID: m.id,
		WorkerID:  workerID,
		Order:     order,
	})

	timer := time.NewTimer(m.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		log.Debug("Processing interrupted",
			logger.WithField("order", order.ID),
			logger.WithField("elapsed", pcontext.GetDuration(ctx)),
			logger.WithField("error", ctx.Err()))
		m.sink.Emit(types.Event{
			Type:      types.EventOrderAborted,
			Timestamp: time.Now(),
			MachineID: m.id,
			WorkerID:  workerID,
			Order:     order,
			Duration:  pcontext.GetDuration(ctx),
		})
		return ctx.Err()
	}

	m.processed.Add(1)
	log.Debug("Order processed",
		logger.WithField("order", order.ID),
		logger.WithField("elapsed", pcontext.GetDuration(ctx)))
	m.sink.Emit(types.Event{
		Type:      types.EventOrderProcessed,
		Timestamp: time.Now(),
		MachineID: m.id,
		WorkerID:  workerID,
		Order:     order,
		Duration:  pcontext.GetDuration(ctx),
	})
	return nil
}

// Status returns a snapshot of the machine state
func (m *Machine) Status() types.MachineStatus {
	return types.MachineStatus{
		ID:          m.id,
		Operational: m.operational.Load(),
		Busy:        m.busy.Load(),
		Processed:   m.processed.Load(),
	}
}
