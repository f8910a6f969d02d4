package engine

import "errors"

// Sentinel errors for production line operations, checked with errors.Is
var (
	// ErrInvalidMachine indicates a machine id outside [1, machine count]
	ErrInvalidMachine = errors.New("invalid machine id")

	// ErrLineStopped indicates the line has been stopped
	ErrLineStopped = errors.New("production line stopped")

	// ErrAlreadyStarted indicates Start was called twice
	ErrAlreadyStarted = errors.New("production line already started")

	// ErrNotStarted indicates an operation that needs running workers
	ErrNotStarted = errors.New("production line not started")

	// ErrWorkerPanic wraps a recovered worker panic
	ErrWorkerPanic = errors.New("worker panic")
)
