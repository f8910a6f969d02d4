// Package types defines the core data structures for the production line
package types

import (
	"fmt"
	"time"
)

// Order is a unit of work submitted to the line. Lower Priority values are
// served first.
type Order struct {
	ID       int `json:"id" yaml:"id"`
	Priority int `json:"priority" yaml:"priority"`
}

// String implements fmt.Stringer
func (o Order) String() string {
	return fmt.Sprintf("order %d (priority %d)", o.ID, o.Priority)
}

// WorkerState represents where a worker is in its consume loop
type WorkerState string

const (
	WorkerStateIdle       WorkerState = "idle"
	WorkerStateWaiting    WorkerState = "waiting"
	WorkerStateDequeued   WorkerState = "dequeued"
	WorkerStateSearching  WorkerState = "searching"
	WorkerStateProcessing WorkerState = "processing"
	WorkerStateStopped    WorkerState = "stopped"
)

// EventType classifies observable line events
type EventType string

const (
	EventLineStarted     EventType = "line_started"
	EventLineStopped     EventType = "line_stopped"
	EventWorkerStarted   EventType = "worker_started"
	EventWorkerStopped   EventType = "worker_stopped"
	EventOrderSubmitted  EventType = "order_submitted"
	EventOrderDequeued   EventType = "order_dequeued"
	EventOrderProcessing EventType = "order_processing"
	EventOrderProcessed  EventType = "order_processed"
	EventOrderAborted    EventType = "order_aborted"
	EventOrderRequeued   EventType = "order_requeued"
	EventOrderAbandoned  EventType = "order_abandoned"
	EventMachineDown     EventType = "machine_down"
	EventMachineRepaired EventType = "machine_repaired"
)

// Event is emitted to sinks whenever something observable happens on the line.
// MachineID and WorkerID are zero when not applicable; Order is only
// meaningful for order_* events.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	MachineID int           `json:"machineId,omitempty"`
	WorkerID  int           `json:"workerId,omitempty"`
	Order     Order         `json:"order,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// HasOrder reports whether the event carries an order
func (e Event) HasOrder() bool {
	switch e.Type {
	case EventOrderSubmitted, EventOrderDequeued, EventOrderProcessing,
		EventOrderProcessed, EventOrderAborted, EventOrderRequeued, EventOrderAbandoned:
		return true
	}
	return false
}

// MachineStatus is a point-in-time snapshot of a machine
type MachineStatus struct {
	ID          int   `json:"id"`
	Operational bool  `json:"operational"`
	Busy        bool  `json:"busy"`
	Processed   int64 `json:"processed"`
}

// LineStats summarizes the line counters. Dequeued and Requeued count
// distinct orders: an order handed back several times counts once.
type LineStats struct {
	Submitted int64           `json:"submitted"`
	Dequeued  int64           `json:"dequeued"`
	Processed int64           `json:"processed"`
	Requeued  int64           `json:"requeued"`
	Aborted   int64           `json:"aborted"`
	Abandoned int64           `json:"abandoned"`
	Pending   int             `json:"pending"`
	Running   bool            `json:"running"`
	Machines  []MachineStatus `json:"machines"`
}

// FaultAction is a scheduled change to a machine's operational state
type FaultAction string

const (
	FaultActionBreak  FaultAction = "break"
	FaultActionRepair FaultAction = "repair"
)

// FaultEvent schedules a break or repair relative to the line start
type FaultEvent struct {
	Machine int         `json:"machine" yaml:"machine"`
	At      int         `json:"at" yaml:"at"` // milliseconds after start
	Action  FaultAction `json:"action" yaml:"action"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// NotificationConfig configures desktop notifications for machine faults
type NotificationConfig struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// LineConfig is the scenario file loaded by the CLI
type LineConfig struct {
	Version        string              `json:"version" yaml:"version"`
	Machines       int                 `json:"machines" yaml:"machines"`
	ProcessingTime int                 `json:"processingTime" yaml:"processingTime"` // milliseconds
	RunFor         int                 `json:"runFor,omitempty" yaml:"runFor,omitempty"` // milliseconds, 0 = until idle
	BrokenMachines []int               `json:"brokenMachines,omitempty" yaml:"brokenMachines,omitempty"`
	Orders         []Order             `json:"orders,omitempty" yaml:"orders,omitempty"`
	Faults         []FaultEvent        `json:"faults,omitempty" yaml:"faults,omitempty"`
	Logging        *LoggingConfig      `json:"logging,omitempty" yaml:"logging,omitempty"`
	Notifications  *NotificationConfig `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// ProcessingDuration returns the configured processing latency
func (c *LineConfig) ProcessingDuration() time.Duration {
	return time.Duration(c.ProcessingTime) * time.Millisecond
}

// RunDuration returns how long the scenario should run, zero meaning until idle
func (c *LineConfig) RunDuration() time.Duration {
	return time.Duration(c.RunFor) * time.Millisecond
}

// NotificationsEnabled reports whether desktop notifications are on
func (c *LineConfig) NotificationsEnabled() bool {
	return c.Notifications != nil && c.Notifications.Enabled != nil && *c.Notifications.Enabled
}
