package expiry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config holds sweep scheduling configuration.
type Config struct {
	// Interval is how often to sweep expired box types.
	// Default is 3 minutes.
	Interval time.Duration

	// StartupDelay is how long to wait before the first sweep.
	// Default is 2 minutes.
	StartupDelay time.Duration

	// Logger for sweep events.
	Logger *slog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     3 * time.Minute,
		StartupDelay: 2 * time.Minute,
		Logger:       slog.Default(),
	}
}

// Result contains the results of a sweep pass.
type Result struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Evicted   int           `json:"evicted"`
	Remaining int           `json:"remaining"`
}

// Sweeper evicts expired entries in a single pass.
type Sweeper interface {
	Sweep(ctx context.Context) *Result
}

// Manager runs a Sweeper on a fixed schedule. The sweeper itself owns no
// goroutine; Manager is the only background actor.
type Manager struct {
	sweeper Sweeper
	config  Config
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	lastRun *Result
}

// NewManager creates a new sweep manager.
func NewManager(s Sweeper, cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Minute
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		sweeper: s,
		config:  cfg,
		logger:  cfg.Logger,
	}
}

// Start begins background sweeps. Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx, m.stopCh, m.doneCh)
}

// Stop stops background sweeps and waits for the current pass to finish.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow performs a single sweep immediately.
func (m *Manager) RunNow(ctx context.Context) *Result {
	return m.runOnce(ctx)
}

// Status returns the result of the last sweep, or nil if none has run.
func (m *Manager) Status() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

func (m *Manager) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	m.logger.Info("sweep manager starting",
		"interval", m.config.Interval,
		"startup_delay", m.config.StartupDelay,
	)

	select {
	case <-time.After(m.config.StartupDelay):
	case <-stopCh:
		m.logger.Info("sweep manager stopped during startup delay")
		return
	case <-ctx.Done():
		m.logger.Info("sweep manager context cancelled during startup delay")
		return
	}

	m.runOnce(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runOnce(ctx)
		case <-stopCh:
			m.logger.Info("sweep manager stopped")
			return
		case <-ctx.Done():
			m.logger.Info("sweep manager context cancelled")
			return
		}
	}
}

func (m *Manager) runOnce(ctx context.Context) *Result {
	result := m.sweeper.Sweep(ctx)
	if result == nil {
		result = &Result{}
	}

	m.mu.Lock()
	m.lastRun = result
	m.mu.Unlock()

	if result.Evicted > 0 {
		m.logger.Info("sweep complete",
			"run_id", result.RunID,
			"evicted", result.Evicted,
			"remaining", result.Remaining,
			"duration", result.Duration,
		)
	} else {
		m.logger.Debug("sweep complete, nothing expired", "run_id", result.RunID)
	}

	return result
}
