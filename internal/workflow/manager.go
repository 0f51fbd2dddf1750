package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"roundtable/internal/config"
	"roundtable/internal/deps"
	"roundtable/internal/logging"
	"roundtable/internal/notifications"
	"roundtable/internal/pipeline"
	"roundtable/internal/session"
)

// Store is the persistence the manager polls and stamps.
type Store interface {
	GetAll(ctx context.Context, states ...session.SessionProcessingState) ([]*session.Session, error)
	Upsert(ctx context.Context, s *session.Session) error
	UpdateHeartbeat(ctx context.Context, id string) error
	Stats(ctx context.Context) (map[session.SessionProcessingState]int, error)
}

// Runner executes one session to a terminal state.
type Runner interface {
	RunEnhanced(ctx context.Context, s *session.Session, progress pipeline.ProgressFunc) (*session.Session, error)
}

// Sweeper repairs sessions that stopped making progress.
type Sweeper interface {
	DetectStuckSessions(ctx context.Context, threshold time.Duration) (int, error)
}

// Manager coordinates daemon-side session processing.
type Manager struct {
	cfg          *config.Config
	store        Store
	runner       Runner
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	sweeper      Sweeper

	heartbeat *HeartbeatMonitor

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastSession *session.Session
	lastSweep   time.Time
	active      map[string]context.CancelFunc

	dependencies []deps.Status
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notifier built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithPollInterval overrides the session poll interval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store Store, runner Runner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	m := &Manager{
		cfg:          cfg,
		store:        store,
		runner:       runner,
		logger:       logger,
		notifier:     notifications.NewService(cfg),
		pollInterval: cfg.SessionPollInterval(),
		heartbeat:    NewHeartbeatMonitor(store, logger, cfg.HeartbeatInterval()),
		active:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConfigureMaintenance installs the stuck-session sweeper. It must be called
// before Start; the sweeper usually consults Active, so it is built after the
// manager.
func (m *Manager) ConfigureMaintenance(sweeper Sweeper) {
	m.mu.Lock()
	m.sweeper = sweeper
	m.mu.Unlock()
}

// Active reports whether id is running in this process.
func (m *Manager) Active(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[id]
	return ok
}

// Cancel stops a running session. It reports whether the session was running.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	cancel, ok := m.active[id]
	m.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

func (m *Manager) track(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.active[id] = cancel
	m.mu.Unlock()
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}
