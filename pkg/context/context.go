// Package context carries run and worker identifiers through line operations
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// UnknownRun is returned when no run id is attached
	UnknownRun = "unknown-run"

	// UnknownOperation is returned when no operation is attached
	UnknownOperation = "unknown-operation"
)

// Unexported struct pointers prevent key collisions
var (
	runIDKey     = &struct{}{}
	workerIDKey  = &struct{}{}
	operationKey = &struct{}{}
	startTimeKey = &struct{}{}
)

// WithRunID adds a run ID to the context, generating one when empty
func WithRunID(parent context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(parent, runIDKey, runID)
}

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id
	}
	return UnknownRun
}

// WithWorkerID tags the context with the worker that owns it
func WithWorkerID(parent context.Context, workerID int) context.Context {
	return context.WithValue(parent, workerIDKey, workerID)
}

// GetWorkerID retrieves the worker ID, zero when absent
func GetWorkerID(ctx context.Context) int {
	if id, ok := ctx.Value(workerIDKey).(int); ok {
		return id
	}
	return 0
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return UnknownOperation
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the operation start time from context
func GetStartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}

// GetDuration returns the time elapsed since the start time, zero when no
// start time was recorded
func GetDuration(ctx context.Context) time.Duration {
	start, ok := GetStartTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// GenerateRunID creates a new unique run ID
func GenerateRunID() string {
	return "run_" + uuid.New().String()
}

// EnrichContext attaches a run ID (if missing) and a start time
func EnrichContext(parent context.Context) context.Context {
	ctx := parent
	if GetRunID(ctx) == UnknownRun {
		ctx = WithRunID(ctx, GenerateRunID())
	}
	return WithStartTime(ctx, time.Now())
}
