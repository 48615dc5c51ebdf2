package sources

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"poi-tiering/internal/budget"
	"poi-tiering/internal/constants"
	"poi-tiering/internal/models"
	"poi-tiering/pkg/circuit"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/metrics"
)

// GuardConfig tunes the resilience wrapper placed around every adapter.
type GuardConfig struct {
	Timeout time.Duration
	RPS     float64
	Burst   int
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout: constants.SourceCallTimeoutDefault,
		RPS:     constants.SourceRateDefault,
		Burst:   constants.SourceBurstDefault,
	}
}

// Guarded wraps an Adapter with the budget guard, a rate limiter, a circuit
// breaker and a per-call timeout. Provider failures come back as
// *errors.SourceUnavailableError; budget refusals wrap ErrBudgetExceeded.
type Guarded struct {
	inner   Adapter
	budget  *budget.Guard
	limiter *rate.Limiter
	breaker *circuit.Breaker
	log     *logging.ComponentLogger
}

// NewGuarded wraps a. budget may be nil for sources that are never charged.
func NewGuarded(a Adapter, cfg GuardConfig, guard *budget.Guard, log *logging.Logger) *Guarded {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.RPS <= 0 {
		cfg.RPS = constants.SourceRateDefault
	}
	if cfg.Burst <= 0 {
		cfg.Burst = constants.SourceBurstDefault
	}
	bc := circuit.DefaultConfig("source_" + a.Name())
	bc.OperationTimeout = cfg.Timeout

	return &Guarded{
		inner:   a,
		budget:  guard,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: circuit.New(bc, log),
		log:     log.WithComponent("sources"),
	}
}

func (g *Guarded) Name() string         { return g.inner.Name() }
func (g *Guarded) CostPerCall() float64 { return g.inner.CostPerCall() }

// Unwrap returns the wrapped adapter.
func (g *Guarded) Unwrap() Adapter { return g.inner }

// Breaker exposes the adapter's circuit breaker for health reporting.
func (g *Guarded) Breaker() *circuit.Breaker { return g.breaker }

func (g *Guarded) FetchCandidates(ctx context.Context, q Query) ([]models.Candidate, error) {
	const op = "sources.FetchCandidates"
	name := g.inner.Name()

	if g.breaker.State() == circuit.Open {
		metrics.RecordSourceRejected(name, "circuit_open")
		return nil, errs.NewSourceUnavailable(op, name, circuit.ErrOpen)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		metrics.RecordSourceRejected(name, "rate_limited")
		return nil, errs.NewSourceUnavailable(op, name, err)
	}

	if g.budget != nil {
		if err := g.budget.Charge(ctx, name, g.inner.CostPerCall()); err != nil {
			return nil, err
		}
	}

	var out []models.Candidate
	start := time.Now()
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var ferr error
		out, ferr = g.inner.FetchCandidates(ctx, q)
		return ferr
	}, nil)
	dur := time.Since(start)

	if errors.Is(err, circuit.ErrOpen) {
		metrics.RecordSourceRejected(name, "circuit_open")
		return nil, errs.NewSourceUnavailable(op, name, err)
	}
	metrics.RecordSourceCall(name, dur, err)
	if err != nil {
		g.log.Warn(ctx, "source call failed",
			logging.String("source", name),
			logging.String("category", q.Category),
			logging.String("name", q.Name),
			logging.Duration("duration", dur),
			logging.Error(err))
		return nil, errs.NewSourceUnavailable(op, name, err)
	}

	for i := range out {
		if out[i].Source == "" {
			out[i].Source = name
		}
	}
	g.log.Debug(ctx, "source call ok",
		logging.String("source", name),
		logging.Int("results", len(out)),
		logging.Duration("duration", dur))
	return out, nil
}
