package engine

import (
	"context"
	"errors"
	"fmt"

	pcontext "github.com/prodline/prodline/pkg/context"
	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/machine"
	"github.com/prodline/prodline/pkg/queue"
	"github.com/prodline/prodline/pkg/types"
)

// runWorker is the consume loop of one worker: take the most urgent order,
// find an operational machine, process. An order that finds no machine goes
// back to the queue at its original position and the worker sleeps until
// availability changes.
func (l *ProductionLine) runWorker(ctx context.Context, workerID int) error {
	ctx = pcontext.WithWorkerID(ctx, workerID)
	log := logger.WithContext(ctx, l.logger.WithComponent(fmt.Sprintf("worker-%d", workerID)))

	l.emit(types.Event{Type: types.EventWorkerStarted, WorkerID: workerID})
	defer func() {
		l.setState(workerID, types.WorkerStateStopped)
		l.emit(types.Event{Type: types.EventWorkerStopped, WorkerID: workerID})
	}()

	for {
		l.setState(workerID, types.WorkerStateWaiting)
		ticket, err := l.queue.Take(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrShutdown) {
				log.Debug("Queue drained, worker stopping")
			} else {
				log.Debug("Worker cancelled", logger.WithField("error", err))
			}
			return nil
		}

		order := ticket.Order
		l.setState(workerID, types.WorkerStateDequeued)
		if !ticket.Retried() {
			l.dequeued.Add(1)
			l.emit(types.Event{Type: types.EventOrderDequeued, WorkerID: workerID, Order: order})
		}

		l.setState(workerID, types.WorkerStateSearching)
		m, gen := l.acquireMachine()
		if m == nil {
			l.queue.Requeue(ticket)
			// Each waiting worker hands the same order back in turn; report it once
			if !ticket.Retried() {
				l.requeued.Add(1)
				l.emit(types.Event{Type: types.EventOrderRequeued, WorkerID: workerID, Order: order})
			}

			if !l.awaitMachine(ctx, gen) {
				log.Debug("No operational machine while stopping, worker exiting",
					logger.WithField("order", order.ID))
				return nil
			}
			continue
		}

		l.setState(workerID, types.WorkerStateProcessing)
		dispatchCtx := pcontext.WithOperation(ctx, "dispatch")
		if err := l.dispatch(dispatchCtx, workerID, m, ticket); err != nil {
			logger.WithContext(dispatchCtx, log).Warn("Order aborted",
				logger.WithField("order", order.ID),
				logger.WithField("machine", m.ID()),
				logger.WithField("error", err))
			return nil
		}
		l.setState(workerID, types.WorkerStateIdle)
	}
}

// dispatch processes a taken order on a claimed machine and releases it. The
// ticket is marked done before the release so WaitIdle never sees a finished
// order as in flight.
func (l *ProductionLine) dispatch(ctx context.Context, workerID int, m *machine.Machine, ticket queue.Ticket) error {
	defer l.releaseMachine(m)
	defer l.queue.Done(ticket)

	if err := m.Process(ctx, workerID, ticket.Order); err != nil {
		l.aborted.Add(1)
		return err
	}
	l.processed.Add(1)
	return nil
}
