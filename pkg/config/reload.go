package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prodline/prodline/pkg/logger"
	"github.com/prodline/prodline/pkg/types"
)

// DefaultDebounce coalesces the burst of events editors emit on save
const DefaultDebounce = 300 * time.Millisecond

// ReloadCallback receives the reloaded scenario, or the error that prevented
// loading it
type ReloadCallback func(*types.LineConfig, error)

// ReloadManager watches a scenario file and re-loads it on change
type ReloadManager struct {
	configPath string
	logger     logger.Logger
	manager    *Manager

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	callbacks   []ReloadCallback
	lastModTime time.Time
	debounce    time.Duration
	timer       *time.Timer
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewReloadManager creates a reload manager for configPath
func NewReloadManager(configPath string, log logger.Logger) *ReloadManager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ReloadManager{
		configPath: configPath,
		logger:     log.WithComponent("config"),
		manager:    NewManager(),
		debounce:   DefaultDebounce,
	}
}

// OnReload registers a callback. Callbacks run sequentially, in registration
// order.
func (rm *ReloadManager) OnReload(cb ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, cb)
}

// SetDebouncePeriod sets the quiet period before a reload fires
func (rm *ReloadManager) SetDebouncePeriod(d time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debounce = d
}

// Start begins watching. The containing directory is watched so editors that
// replace the file on save are still seen.
func (rm *ReloadManager) Start() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.watcher != nil {
		return fmt.Errorf("already watching %s", rm.configPath)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(rm.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	if stat, err := os.Stat(rm.configPath); err == nil {
		rm.lastModTime = stat.ModTime()
	}

	rm.watcher = watcher
	rm.done = make(chan struct{})
	rm.wg.Add(1)
	go rm.watchLoop(watcher, rm.done)

	rm.logger.Debug("Watching scenario file", logger.WithField("path", rm.configPath))
	return nil
}

// Stop stops watching and waits for the watcher goroutine to exit
func (rm *ReloadManager) Stop() error {
	rm.mu.Lock()
	if rm.watcher == nil {
		rm.mu.Unlock()
		return nil
	}
	close(rm.done)
	if rm.timer != nil {
		rm.timer.Stop()
		rm.timer = nil
	}
	err := rm.watcher.Close()
	rm.watcher = nil
	rm.mu.Unlock()

	rm.wg.Wait()
	return err
}

// IsWatching reports whether the manager is running
func (rm *ReloadManager) IsWatching() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.watcher != nil
}

// TriggerReload reloads immediately, bypassing the modification time check
func (rm *ReloadManager) TriggerReload() {
	rm.reload(true)
}

func (rm *ReloadManager) watchLoop(watcher *fsnotify.Watcher, done <-chan struct{}) {
	defer rm.wg.Done()

	for {
		select {
		case <-done:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !rm.isConfigFileEvent(event.Name) {
				continue
			}
			rm.logger.Debug("Scenario file event", logger.WithField("event", event.String()))

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if _, err := os.Stat(rm.configPath); err != nil {
					rm.notify(nil, fmt.Errorf("configuration file was removed: %s", rm.configPath))
					continue
				}
			}
			rm.schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rm.logger.Error("Scenario watcher error", logger.WithField("error", err))
			rm.notify(nil, err)
		}
	}
}

func (rm *ReloadManager) isConfigFileEvent(path string) bool {
	name := filepath.Base(rm.configPath)
	base := filepath.Base(path)
	return base == name || (strings.HasPrefix(base, name) && strings.HasSuffix(base, ".tmp"))
}

func (rm *ReloadManager) schedule() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.watcher == nil {
		return
	}
	if rm.timer != nil {
		rm.timer.Stop()
	}
	rm.timer = time.AfterFunc(rm.debounce, func() { rm.reload(false) })
}

func (rm *ReloadManager) reload(force bool) {
	stat, err := os.Stat(rm.configPath)
	if err != nil {
		rm.notify(nil, err)
		return
	}

	rm.mu.Lock()
	if !force && !stat.ModTime().After(rm.lastModTime) {
		rm.mu.Unlock()
		rm.logger.Debug("Scenario file unchanged, skipping reload")
		return
	}
	rm.lastModTime = stat.ModTime()
	rm.mu.Unlock()

	cfg, err := rm.manager.LoadConfig(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to reload scenario", logger.WithField("error", err))
		rm.notify(nil, err)
		return
	}

	rm.logger.Info("Scenario reloaded",
		logger.WithField("path", rm.configPath),
		logger.WithField("broken_machines", cfg.BrokenMachines))
	rm.notify(cfg, nil)
}

func (rm *ReloadManager) notify(cfg *types.LineConfig, err error) {
	rm.mu.Lock()
	callbacks := make([]ReloadCallback, len(rm.callbacks))
	copy(callbacks, rm.callbacks)
	rm.mu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					rm.logger.Error("Reload callback panic recovered", logger.WithField("panic", r))
				}
			}()
			cb(cfg, err)
		}()
	}
}
