// Package engine runs the production line: a fixed pool of workers, one per
// machine, consuming a shared priority queue of orders.
//
// The implementation is split across files:
//   - line.go: ProductionLine lifecycle, machine faults, stats
//   - worker.go: the per-machine consume loop
//   - faults.go: timed break/repair schedules
//   - factory.go: building a line from a scenario config
//   - safegroup.go: panic-safe worker join handles
package engine
