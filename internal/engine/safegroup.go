package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/prodline/prodline/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// SafeGroup owns the join handles of the line workers. It wraps
// errgroup.Group so a panicking worker is converted into an error, and the
// first failure cancels the group context for its siblings.
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
	count  atomic.Int32
	panics atomic.Int32
}

// NewSafeGroup creates a new SafeGroup and the context its goroutines share
func NewSafeGroup(ctx context.Context, log logger.Logger) (*SafeGroup, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &SafeGroup{
		group:  g,
		logger: log,
	}, ctx
}

// Go runs fn in a new goroutine. A panic is logged with its stack trace and
// returned from Wait as an error wrapping ErrWorkerPanic.
func (sg *SafeGroup) Go(name string, fn func() error) {
	sg.count.Add(1)
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.panics.Add(1)
				sg.logger.Error("Goroutine panic recovered",
					logger.WithField("goroutine", name),
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				err = fmt.Errorf("%w: %s: %v", ErrWorkerPanic, name, r)
			}
		}()

		return fn()
	})
}

// Wait blocks until every goroutine has returned and reports the first error
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}

// Len returns how many goroutines were started
func (sg *SafeGroup) Len() int {
	return int(sg.count.Load())
}

// Panics returns how many goroutines panicked
func (sg *SafeGroup) Panics() int {
	return int(sg.panics.Load())
}
