package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"poi-tiering/pkg/circuit"
	"poi-tiering/pkg/logging"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Critical    bool          `json:"critical"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker defines the interface for health check functions
type Checker interface {
	Name() string
	// Critical checkers make the system unhealthy when they fail; others
	// only degrade it.
	Critical() bool
	Check(ctx context.Context) ComponentHealth
}

// Config holds configuration for the health manager
type Config struct {
	Timeout time.Duration
	Version string
}

func DefaultHealthConfig() Config {
	return Config{Timeout: 5 * time.Second, Version: "dev"}
}

// Manager runs registered checks concurrently.
type Manager struct {
	mu        sync.RWMutex
	checkers  []Checker
	startTime time.Time
	cfg       Config
	logger    *logging.ComponentLogger
}

func NewManager(cfg Config, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHealthConfig().Timeout
	}
	return &Manager{startTime: time.Now(), cfg: cfg, logger: logger.WithComponent("health")}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// CheckAll runs all health checks
func (m *Manager) CheckAll(ctx context.Context) SystemHealth {
	start := time.Now()
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	results := make([]ComponentHealth, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
			defer cancel()
			t0 := time.Now()
			r := c.Check(checkCtx)
			r.Name = c.Name()
			r.Critical = c.Critical()
			r.LastChecked = t0
			r.Duration = time.Since(t0)
			results[i] = r
		}(i, c)
	}
	wg.Wait()

	components := make(map[string]ComponentHealth, len(results))
	for _, r := range results {
		components[r.Name] = r
	}
	status := overall(results)
	m.logger.Debug(ctx, "completed health check",
		logging.String("status", string(status)),
		logging.Duration("duration", time.Since(start)),
		logging.Int("components", len(components)))

	return SystemHealth{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Version:    m.cfg.Version,
		Uptime:     time.Since(m.startTime),
		Components: components,
	}
}

func overall(results []ComponentHealth) Status {
	if len(results) == 0 {
		return StatusUnknown
	}
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusHealthy:
		case StatusUnhealthy:
			if r.Critical {
				return StatusUnhealthy
			}
			status = StatusDegraded
		default:
			status = StatusDegraded
		}
	}
	return status
}

// Handler serves CheckAll as JSON; 503 when the system is unhealthy.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := m.CheckAll(r.Context())
		code := http.StatusOK
		if h.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(h)
	})
}

// Pinger is satisfied by *database.DB.
type Pinger interface {
	PingCtx(ctx context.Context) error
}

// DatabaseChecker checks database connectivity
type DatabaseChecker struct {
	db   Pinger
	name string
}

func NewDatabaseChecker(db Pinger, name string) *DatabaseChecker {
	return &DatabaseChecker{db: db, name: name}
}

func (d *DatabaseChecker) Name() string   { return d.name }
func (d *DatabaseChecker) Critical() bool { return true }

func (d *DatabaseChecker) Check(ctx context.Context) ComponentHealth {
	if err := d.db.PingCtx(ctx); err != nil {
		return ComponentHealth{Status: StatusUnhealthy, Message: "database ping failed", Error: err.Error()}
	}
	return ComponentHealth{Status: StatusHealthy, Message: "database reachable"}
}

// BreakerState reports the current state of a circuit breaker.
type BreakerState interface {
	Name() string
	State() circuit.State
}

// BreakerChecker reports source circuit breakers. Any open breaker
// degrades the system; sources are never critical.
type BreakerChecker struct {
	breakers []BreakerState
}

func NewBreakerChecker(breakers ...BreakerState) *BreakerChecker {
	return &BreakerChecker{breakers: breakers}
}

func (b *BreakerChecker) Name() string   { return "sources" }
func (b *BreakerChecker) Critical() bool { return false }

func (b *BreakerChecker) Check(context.Context) ComponentHealth {
	var open []string
	for _, br := range b.breakers {
		if br.State() == circuit.Open {
			open = append(open, br.Name())
		}
	}
	if len(open) == 0 {
		return ComponentHealth{Status: StatusHealthy, Message: "all source circuits closed"}
	}
	sort.Strings(open)
	msg := "open circuits:"
	for _, n := range open {
		msg += " " + n
	}
	return ComponentHealth{Status: StatusDegraded, Message: msg}
}
