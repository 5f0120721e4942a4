package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/constitution/pkg/policy/engine/source"
)

// Reloader accepts a new constitution. *engine.Engine implements it.
type Reloader interface {
	Reload(source []byte, sourcePath string) error
}

// Trigger names what caused a reload.
type Trigger string

const (
	TriggerInitial Trigger = "initial"
	TriggerWatch   Trigger = "watch"
	TriggerManual  Trigger = "manual"
)

// ReloadEvent reports the outcome of one reload attempt.
type ReloadEvent struct {
	Trigger   Trigger
	Origin    string
	Err       error
	Timestamp time.Time
}

// Status is a snapshot of the manager's reload history.
type Status struct {
	Origin        string
	LastAttempt   time.Time
	LastSuccess   time.Time
	LastError     error
	Reloads       int
	FailedReloads int
	Watching      bool
}

// Config configures a Manager.
type Config struct {
	// Watch enables automatic reload when the file changes.
	Watch bool

	// WatchPath is the file to watch. Required when Watch is set.
	WatchPath string

	// DebounceInterval is the quiet period before a watched change
	// is applied (default: 100ms).
	DebounceInterval time.Duration
}

// Manager loads the constitution into a Reloader and keeps it current.
type Manager struct {
	config   *Config
	reloader Reloader
	source   source.Source
	logger   *slog.Logger

	reloadMu sync.Mutex

	mu     sync.RWMutex
	status Status
	events chan ReloadEvent

	watcher *FileWatcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a manager.
func New(config *Config, reloader Reloader, src source.Source, logger *slog.Logger) (*Manager, error) {
	if reloader == nil {
		return nil, fmt.Errorf("reloader cannot be nil")
	}
	if src == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if config == nil {
		config = &Config{}
	}
	if config.Watch && config.WatchPath == "" {
		return nil, fmt.Errorf("watch path is required when watching")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config:   config,
		reloader: reloader,
		source:   src,
		logger:   logger,
		events:   make(chan ReloadEvent, 16),
	}, nil
}

// Start performs the initial load and, when configured, starts watching.
// An initial load failure is returned and nothing is started.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.reload(ctx, TriggerInitial); err != nil {
		return err
	}
	if !m.config.Watch {
		return nil
	}

	w, err := NewFileWatcher(&FileWatcherConfig{
		Path:             m.config.WatchPath,
		DebounceInterval: m.config.DebounceInterval,
	}, m.logger)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.watcher = w
	m.cancel = cancel
	m.done = make(chan struct{})
	m.status.Watching = true
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		if err := w.Watch(watchCtx, func() {
			_ = m.reload(watchCtx, TriggerWatch)
		}); err != nil {
			m.logger.Error("constitution watcher exited", "error", err)
		}
	}()

	return nil
}

// ReloadNow reloads from the source immediately.
func (m *Manager) ReloadNow(ctx context.Context) error {
	return m.reload(ctx, TriggerManual)
}

// Events returns reload outcomes. Events are dropped when nobody reads.
func (m *Manager) Events() <-chan ReloadEvent {
	return m.events
}

// Status returns the reload history.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Stop stops watching and waits for in-flight reloads.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel, done, w := m.cancel, m.done, m.watcher
	m.cancel, m.done, m.watcher = nil, nil, nil
	m.status.Watching = false
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return w.Close()
}

func (m *Manager) reload(ctx context.Context, trigger Trigger) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	data, origin, err := m.source.Load(ctx)
	if err == nil {
		err = m.reloader.Reload(data, origin)
	}

	now := time.Now()
	m.mu.Lock()
	m.status.Origin = origin
	m.status.LastAttempt = now
	m.status.LastError = err
	if err != nil {
		m.status.FailedReloads++
	} else {
		m.status.Reloads++
		m.status.LastSuccess = now
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("constitution reload failed", "trigger", trigger, "origin", origin, "error", err)
	} else {
		m.logger.Info("constitution reloaded", "trigger", trigger, "origin", origin)
	}

	select {
	case m.events <- ReloadEvent{Trigger: trigger, Origin: origin, Err: err, Timestamp: now}:
	default:
	}
	return err
}
