// Package queue provides the shared order queue consumed by line workers
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/types"
)

var (
	// ErrShutdown is returned by Take once the queue is closed and empty
	ErrShutdown = errors.New("order queue shut down")

	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("order queue closed")
)

// entry pairs an order with its submission sequence. The sequence breaks
// priority ties so equal priorities leave in submission order.
type entry struct {
	order    types.Order
	seq      uint64
	attempts int
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].order.Priority == h[j].order.Priority {
		return h[i].seq < h[j].seq
	}
	return h[i].order.Priority < h[j].order.Priority
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(entry))
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// Ticket identifies a taken order so it can be requeued at its original
// position. Attempt counts earlier takes of the same order, zero on the first.
type Ticket struct {
	Order   types.Order
	Attempt int
	seq     uint64
}

// Retried reports whether the order was handed back before this take
func (t Ticket) Retried() bool { return t.Attempt > 0 }

// OrderQueue is a blocking min-priority queue. Consumers wait on a condition
// variable instead of polling. Taken orders stay counted as in flight until
// they are requeued or marked done.
type OrderQueue struct {
	logger logger.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	items    entryHeap
	nextSeq  uint64
	inFlight int
	closed   bool
}

// NewOrderQueue creates an empty queue. log may be nil.
func NewOrderQueue(log logger.Logger) *OrderQueue {
	q := &OrderQueue{logger: log}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.items)
	return q
}

// Submit adds an order and wakes one waiting consumer. It never blocks on
// consumers. Duplicate ids are accepted as independent entries.
func (q *OrderQueue) Submit(order types.Order) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	heap.Push(&q.items, entry{order: order, seq: q.nextSeq})
	q.nextSeq++
	size := q.items.Len()
	q.mu.Unlock()

	q.cond.Signal()

	if q.logger != nil {
		q.logger.Debug("Order queued",
			logger.WithField("order", order.ID),
			logger.WithField("priority", order.Priority),
			logger.WithField("queue_size", size))
	}
	return nil
}

// Take blocks until an order is available and returns the one with the lowest
// priority value. It returns ErrShutdown when the queue is closed and empty,
// or the context error when ctx is done first.
func (q *OrderQueue) Take(ctx context.Context) (Ticket, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			return Ticket{}, err
		}
		q.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return Ticket{}, err
	}
	if q.items.Len() == 0 {
		return Ticket{}, ErrShutdown
	}

	e := heap.Pop(&q.items).(entry)
	q.inFlight++
	return Ticket{Order: e.order, Attempt: e.attempts, seq: e.seq}, nil
}

// Requeue puts a taken order back with its original sequence, so it keeps its
// place ahead of later submissions of the same priority. It is accepted after
// Close so that draining workers can hand orders back.
func (q *OrderQueue) Requeue(t Ticket) {
	q.mu.Lock()
	heap.Push(&q.items, entry{order: t.Order, seq: t.seq, attempts: t.Attempt + 1})
	if q.inFlight > 0 {
		q.inFlight--
	}
	q.mu.Unlock()

	q.cond.Signal()
}

// Done marks a taken order as finished, whether it completed or was aborted
func (q *OrderQueue) Done(Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight > 0 {
		q.inFlight--
	}
}

// Outstanding returns pending orders plus orders taken but not yet done
func (q *OrderQueue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len() + q.inFlight
}

// Close marks the queue as shut down and wakes every waiter. Pending orders
// remain available to Take until the queue is empty.
func (q *OrderQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cond.Broadcast()

	if q.logger != nil {
		q.logger.Debug("Order queue closed")
	}
}

// Peek returns the next order without removing it
func (q *OrderQueue) Peek() (types.Order, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return types.Order{}, false
	}
	return q.items[0].order, true
}

// Len returns the number of pending orders
func (q *OrderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Drain removes every pending order and returns them in service order
func (q *OrderQueue) Drain() []types.Order {
	q.mu.Lock()
	defer q.mu.Unlock()

	orders := make([]types.Order, 0, q.items.Len())
	for q.items.Len() > 0 {
		orders = append(orders, heap.Pop(&q.items).(entry).order)
	}
	return orders
}
