package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pcontext "github.com/prodline/prodline/pkg/context"
	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/machine"
	"github.com/prodline/prodline/pkg/notifier"
	"github.com/prodline/prodline/pkg/queue"
	"github.com/prodline/prodline/pkg/types"
)

// ProductionLine owns the machines, the order queue and the workers that
// dispatch orders to machines.
type ProductionLine struct {
	logger  logger.Logger
	sink    notifier.Sink
	latency time.Duration
	runID   string

	queue    *queue.OrderQueue
	machines []*machine.Machine
	states   []atomic.Value

	mu       sync.Mutex
	started  bool
	group    *SafeGroup
	cancel   context.CancelFunc
	done     chan struct{}
	runCtx   context.Context
	waitErr  error
	stopOnce sync.Once

	running  atomic.Bool
	stopping atomic.Bool

	// availability is signalled whenever a machine may have become usable:
	// a repair, a release after processing, or shutdown
	availMu   sync.Mutex
	availCond *sync.Cond
	availGen  uint64

	submitted atomic.Int64
	dequeued  atomic.Int64
	processed atomic.Int64
	requeued  atomic.Int64
	aborted   atomic.Int64
	abandoned atomic.Int64
}

// New creates a line with machineCount operational machines numbered from 1.
// Workers are not started until Start.
func New(machineCount int, opts ...Option) (*ProductionLine, error) {
	if machineCount < 1 {
		return nil, fmt.Errorf("machine count must be at least 1, got %d", machineCount)
	}

	l := &ProductionLine{
		logger:  logger.NewNopLogger(),
		latency: machine.DefaultProcessingTime,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sink == nil {
		l.sink = notifier.NewLogSink(l.logger)
	}
	if l.runID == "" {
		l.runID = pcontext.GenerateRunID()
	}
	l.availCond = sync.NewCond(&l.availMu)

	l.queue = queue.NewOrderQueue(l.logger.WithComponent("queue"))
	l.machines = make([]*machine.Machine, machineCount)
	l.states = make([]atomic.Value, machineCount)
	for i := range l.machines {
		l.machines[i] = machine.New(i+1, l.latency, l.sink, l.logger)
		l.states[i].Store(types.WorkerStateIdle)
	}

	return l, nil
}

// RunID returns the identifier attached to this line's logs
func (l *ProductionLine) RunID() string { return l.runID }

// MachineCount returns the number of machines
func (l *ProductionLine) MachineCount() int { return len(l.machines) }

// IsRunning reports whether workers are accepting work
func (l *ProductionLine) IsRunning() bool { return l.running.Load() }

// Submit enqueues an order. It may be called before Start; orders then wait
// until workers come up. After Stop it returns ErrLineStopped.
func (l *ProductionLine) Submit(order types.Order) error {
	if l.stopping.Load() {
		return ErrLineStopped
	}
	if err := l.queue.Submit(order); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return ErrLineStopped
		}
		return err
	}
	l.submitted.Add(1)
	l.emit(types.Event{Type: types.EventOrderSubmitted, Order: order})
	return nil
}

// Start launches one worker per machine. The workers live until Stop, or
// until ctx is cancelled.
func (l *ProductionLine) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopping.Load() {
		return ErrLineStopped
	}
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true

	ctx = pcontext.EnrichContext(pcontext.WithRunID(ctx, l.runID))
	l.runCtx = ctx
	workerCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	group, groupCtx := NewSafeGroup(workerCtx, l.logger)
	l.group = group

	// Wake availability waiters on cancellation so they observe ctx.Err()
	context.AfterFunc(groupCtx, l.broadcastAvailability)

	l.running.Store(true)
	for i := range l.machines {
		workerID := i + 1
		group.Go(fmt.Sprintf("worker-%d", workerID), func() error {
			return l.runWorker(groupCtx, workerID)
		})
	}

	l.done = make(chan struct{})
	go func() {
		l.waitErr = group.Wait()
		l.running.Store(false)
		close(l.done)
	}()

	l.logger.Info("Production line started",
		logger.WithField("run_id", l.runID),
		logger.WithField("workers", group.Len()),
		logger.WithField("processing_time", l.latency))
	l.emit(types.Event{Type: types.EventLineStarted, Message: l.runID})
	return nil
}

// Stop stops accepting orders and joins the workers. Queued orders keep being
// served while a machine can take them; whatever remains once the workers
// exit is reported as abandoned. If ctx expires first, in-flight processing
// is aborted. Stop is idempotent and safe to call before Start.
func (l *ProductionLine) Stop(ctx context.Context) error {
	first := l.stopping.CompareAndSwap(false, true)
	l.running.Store(false)
	if first {
		fields := []logger.Field{logger.WithField("pending", l.queue.Len())}
		if next, ok := l.queue.Peek(); ok {
			fields = append(fields, logger.WithField("next_order", next.String()))
		}
		l.logger.Info("Stopping production line", fields...)
		l.queue.Close()
		l.broadcastAvailability()
	}

	l.mu.Lock()
	started := l.started
	done := l.done
	group := l.group
	runCtx := l.runCtx
	l.mu.Unlock()

	if started {
		select {
		case <-done:
		case <-ctx.Done():
			l.logger.Warn("Stop deadline reached, aborting in-flight orders",
				logger.WithField("error", ctx.Err()))
			l.cancel()
			<-done
		}
	}

	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		l.abandonPending()
		l.broadcastAvailability()
		l.emit(types.Event{Type: types.EventLineStopped, Message: l.runID})
		fields := []logger.Field{
			logger.WithField("processed", l.processed.Load()),
			logger.WithField("abandoned", l.abandoned.Load()),
		}
		if runCtx != nil {
			fields = append(fields, logger.WithField("uptime", pcontext.GetDuration(runCtx)))
		}
		if group != nil && group.Panics() > 0 {
			fields = append(fields, logger.WithField("panics", group.Panics()))
		}
		l.logger.Info("Production line stopped", fields...)
	})

	if started {
		return l.waitErr
	}
	return nil
}

// Wait blocks until every worker has exited and returns the first worker
// error, such as a recovered panic.
func (l *ProductionLine) Wait() error {
	l.mu.Lock()
	started := l.started
	done := l.done
	l.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	<-done
	return l.waitErr
}

// WaitIdle blocks until the queue is empty and no order is in flight, or ctx
// is done.
func (l *ProductionLine) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.broadcastAvailability)
	defer stop()

	l.availMu.Lock()
	defer l.availMu.Unlock()
	for !l.idle() {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.availCond.Wait()
	}
	return nil
}

func (l *ProductionLine) idle() bool {
	return l.queue.Outstanding() == 0
}

// BreakMachine takes machine id out of service. Work already running on it
// finishes; later orders skip it until repaired.
func (l *ProductionLine) BreakMachine(id int) error {
	m, err := l.machine(id)
	if err != nil {
		return err
	}
	if m.BreakDown() {
		l.logger.Debug("Machine marked broken", logger.WithField("machine", id))
	}
	return nil
}

// RepairMachine returns machine id to service and wakes workers holding
// orders that found no machine.
func (l *ProductionLine) RepairMachine(id int) error {
	m, err := l.machine(id)
	if err != nil {
		return err
	}
	if m.Repair() {
		l.notifyAvailability()
	}
	return nil
}

// ApplyFaults reconciles machine states against a set of broken ids: listed
// machines are broken, all others repaired. Ids are validated before any
// state changes.
func (l *ProductionLine) ApplyFaults(broken []int) error {
	var errs []error
	set := make(map[int]struct{}, len(broken))
	for _, id := range broken {
		if _, err := l.machine(id); err != nil {
			errs = append(errs, err)
			continue
		}
		set[id] = struct{}{}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, m := range l.machines {
		if _, ok := set[m.ID()]; ok {
			m.BreakDown()
			continue
		}
		if m.Repair() {
			l.notifyAvailability()
		}
	}
	return nil
}

// Machines returns a snapshot of every machine
func (l *ProductionLine) Machines() []types.MachineStatus {
	out := make([]types.MachineStatus, len(l.machines))
	for i, m := range l.machines {
		out[i] = m.Status()
	}
	return out
}

// WorkerStates returns the current state of each worker, indexed by worker
// id minus one
func (l *ProductionLine) WorkerStates() []types.WorkerState {
	out := make([]types.WorkerState, len(l.states))
	for i := range l.states {
		out[i] = l.states[i].Load().(types.WorkerState)
	}
	return out
}

// Stats returns the line counters
func (l *ProductionLine) Stats() types.LineStats {
	return types.LineStats{
		Submitted: l.submitted.Load(),
		Dequeued:  l.dequeued.Load(),
		Processed: l.processed.Load(),
		Requeued:  l.requeued.Load(),
		Aborted:   l.aborted.Load(),
		Abandoned: l.abandoned.Load(),
		Pending:   l.queue.Len(),
		Running:   l.running.Load(),
		Machines:  l.Machines(),
	}
}

func (l *ProductionLine) machine(id int) (*machine.Machine, error) {
	if id < 1 || id > len(l.machines) {
		l.logger.Warn("Invalid machine id",
			logger.WithField("machine", id),
			logger.WithField("machines", len(l.machines)))
		return nil, fmt.Errorf("%w: %d", ErrInvalidMachine, id)
	}
	return l.machines[id-1], nil
}

// acquireMachine claims the lowest numbered usable machine. The returned
// generation lets a caller that found nothing wait for the next change.
func (l *ProductionLine) acquireMachine() (*machine.Machine, uint64) {
	l.availMu.Lock()
	defer l.availMu.Unlock()

	gen := l.availGen
	for _, m := range l.machines {
		if m.TryAcquire() {
			return m, gen
		}
	}
	return nil, gen
}

func (l *ProductionLine) releaseMachine(m *machine.Machine) {
	m.Release()
	l.notifyAvailability()
}

// awaitMachine blocks until machine availability changes past gen. It
// returns false when the worker should exit instead: the line is stopping
// with no usable machine, or ctx is done.
func (l *ProductionLine) awaitMachine(ctx context.Context, gen uint64) bool {
	l.availMu.Lock()
	defer l.availMu.Unlock()

	for l.availGen == gen {
		if ctx.Err() != nil || l.stopping.Load() {
			return false
		}
		l.availCond.Wait()
	}
	return ctx.Err() == nil
}

func (l *ProductionLine) notifyAvailability() {
	l.availMu.Lock()
	l.availGen++
	l.availMu.Unlock()
	l.availCond.Broadcast()
}

func (l *ProductionLine) broadcastAvailability() {
	l.availMu.Lock()
	defer l.availMu.Unlock()
	l.availCond.Broadcast()
}

func (l *ProductionLine) abandonPending() {
	for _, order := range l.queue.Drain() {
		l.abandoned.Add(1)
		l.emit(types.Event{Type: types.EventOrderAbandoned, Order: order})
	}
}

func (l *ProductionLine) setState(workerID int, state types.WorkerState) {
	l.states[workerID-1].Store(state)
}

func (l *ProductionLine) emit(e types.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.sink.Emit(e)
}
