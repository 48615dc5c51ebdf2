package circuit

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"poi-tiering/internal/constants"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/metrics"
)

// State mirrors gobreaker's states for logging/metrics.
type State int

const (
	Closed   State = State(gobreaker.StateClosed)
	HalfOpen State = State(gobreaker.StateHalfOpen)
	Open     State = State(gobreaker.StateOpen)
)

func (s State) String() string { return gobreaker.State(s).String() }

// Config tunes a circuit breaker instance.
type Config struct {
	Name string

	OperationTimeout time.Duration // per-call timeout; 0 keeps the caller's deadline
	OpenFor          time.Duration // how long to stay open before probing
	Interval         time.Duration // closed-state counter reset period
	MinRequests      uint32        // requests in the interval before the ratio applies
	FailureRatio     float64       // 0..1 fraction of failures to open
	HalfOpenRequests uint32        // probes allowed while half-open
}

// DefaultConfig returns the per-source breaker defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		OperationTimeout: constants.SourceCallTimeoutDefault,
		OpenFor:          constants.SourceBreakerOpenFor,
		Interval:         constants.SourceBreakerInterval,
		MinRequests:      constants.CircuitMinRequests,
		FailureRatio:     constants.CircuitFailureRatio,
		HalfOpenRequests: 1,
	}
}

// ErrOpen indicates the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("circuit open")

type Breaker struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker[any]
	log *logging.ComponentLogger
}

func New(cfg Config, log *logging.Logger) *Breaker {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	b := &Breaker{cfg: cfg, log: log.WithComponent("circuit")}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// A caller abandoning the call says nothing about the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitState(name, int(to))
			b.log.Warn(context.Background(), "breaker state change",
				logging.String("name", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
		},
	})
	metrics.SetCircuitState(cfg.Name, int(Closed))
	return b
}

func (b *Breaker) Name() string { return b.cfg.Name }

func (b *Breaker) State() State { return State(b.cb.State()) }

// Do runs op under breaker. If open, runs fallback if provided, otherwise returns ErrOpen.
// op should return error only; any outputs can be captured via closure vars.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error, fallback func(ctx context.Context, cause error) error) error {
	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	_, err := b.cb.Execute(func() (any, error) {
		return nil, op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrOpen
	}
	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}
