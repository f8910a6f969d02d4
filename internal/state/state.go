// Package state records the status of production line runs on disk so a
// separate process can inspect them
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/types"
)

// RunStatus is the lifecycle state of a recorded run
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusStopped RunStatus = "stopped"
	RunStatusFailed  RunStatus = "failed"
)

// DefaultHeartbeat is how often a running line refreshes its state file
const DefaultHeartbeat = time.Second

// StaleAfter is how long a running state may go without a heartbeat before
// it is considered abandoned by a crashed process
const StaleAfter = 30 * time.Second

// RunState is the persisted snapshot of one run
type RunState struct {
	RunID     string          `json:"runId"`
	Scenario  string          `json:"scenario,omitempty"`
	ProcessID int             `json:"processId"`
	Status    RunStatus       `json:"status"`
	StartedAt time.Time       `json:"startedAt"`
	Heartbeat time.Time       `json:"heartbeat"`
	Stats     types.LineStats `json:"stats"`
	LastError string          `json:"lastError,omitempty"`
}

// IsStale reports whether a running state stopped heartbeating
func (s *RunState) IsStale(now time.Time) bool {
	return s.Status == RunStatusRunning && now.Sub(s.Heartbeat) > StaleAfter
}

// StateManager writes the state file of the current run and reads others
type StateManager struct {
	stateDir string
	logger   logger.Logger

	mu       sync.Mutex
	current  *RunState
	snapshot func() types.LineStats
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewStateManager creates a state manager storing files under stateDir
func NewStateManager(stateDir string, log logger.Logger) *StateManager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &StateManager{
		stateDir: stateDir,
		logger:   log.WithComponent("state"),
	}
}

// Begin records a new running state. snapshot is polled on every heartbeat.
func (sm *StateManager) Begin(runID, scenario string, snapshot func() types.LineStats) error {
	if err := os.MkdirAll(sm.stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	now := time.Now()
	state := &RunState{
		RunID:     runID,
		Scenario:  scenario,
		ProcessID: os.Getpid(),
		Status:    RunStatusRunning,
		StartedAt: now,
		Heartbeat: now,
		Stats:     snapshot(),
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current != nil {
		return fmt.Errorf("run %s already recorded", sm.current.RunID)
	}
	sm.current = state
	sm.snapshot = snapshot
	return sm.saveStateFile(state)
}

// StartHeartbeat refreshes the state file every interval until ctx is done
// or StopHeartbeat is called
func (sm *StateManager) StartHeartbeat(ctx context.Context, interval time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.stop != nil || sm.current == nil {
		return
	}
	sm.stop = make(chan struct{})
	stop := sm.stop

	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				sm.updateHeartbeat()
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat goroutine and waits for it
func (sm *StateManager) StopHeartbeat() {
	sm.mu.Lock()
	if sm.stop != nil {
		close(sm.stop)
		sm.stop = nil
	}
	sm.mu.Unlock()
	sm.wg.Wait()
}

// Finish writes the final stats and marks the run stopped, or failed when
// runErr is set
func (sm *StateManager) Finish(stats types.LineStats, runErr error) error {
	sm.StopHeartbeat()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current == nil {
		return nil
	}

	sm.current.Stats = stats
	sm.current.Heartbeat = time.Now()
	sm.current.Status = RunStatusStopped
	if runErr != nil {
		sm.current.Status = RunStatusFailed
		sm.current.LastError = runErr.Error()
	}
	return sm.saveStateFile(sm.current)
}

// ReadState loads the state of one run
func (sm *StateManager) ReadState(runID string) (*RunState, error) {
	return sm.loadStateFile(sm.getStateFilePath(runID))
}

// RemoveState deletes the state file of a run
func (sm *StateManager) RemoveState(runID string) error {
	if err := os.Remove(sm.getStateFilePath(runID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// DiscoverStates returns every recorded run, most recent first. Unreadable
// files are skipped with a warning.
func (sm *StateManager) DiscoverStates() ([]*RunState, error) {
	files, err := os.ReadDir(sm.stateDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []*RunState
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		state, err := sm.loadStateFile(filepath.Join(sm.stateDir, file.Name()))
		if err != nil {
			sm.logger.Warn("Failed to load state file",
				logger.WithField("file", file.Name()),
				logger.WithField("error", err))
			continue
		}
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.After(states[j].StartedAt)
	})
	return states, nil
}

func (sm *StateManager) getStateFilePath(runID string) string {
	return filepath.Join(sm.stateDir, strings.ReplaceAll(runID, string(filepath.Separator), "_")+".json")
}

func (sm *StateManager) loadStateFile(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &state, nil
}

// saveStateFile writes through a temp file and rename so readers never see a
// partial file. Callers hold sm.mu.
func (sm *StateManager) saveStateFile(state *RunState) error {
	path := sm.getStateFilePath(state.RunID)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

func (sm *StateManager) updateHeartbeat() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current == nil {
		return
	}
	sm.current.Heartbeat = time.Now()
	sm.current.Stats = sm.snapshot()
	if err := sm.saveStateFile(sm.current); err != nil {
		sm.logger.Debug("Failed to update heartbeat",
			logger.WithField("run_id", sm.current.RunID),
			logger.WithField("error", err))
	}
}
