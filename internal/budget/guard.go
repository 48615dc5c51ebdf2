package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"poi-tiering/internal/domain"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/metrics"
)

type forceKey struct{}

// WithForce marks ctx so paid calls proceed past an exhausted budget.
func WithForce(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceKey{}, true)
}

// Forced reports whether ctx was marked with WithForce.
func Forced(ctx context.Context) bool {
	v, _ := ctx.Value(forceKey{}).(bool)
	return v
}

// MonthKey is the spend bucket for t, e.g. "2026-10". Months are UTC.
func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }

type spendWrite struct {
	month  string
	amount float64
}

// Guard enforces a monthly USD ceiling on paid provider calls. The running
// total lives in memory and is written through to the SpendRepository by a
// background worker, so a charge never waits on the database.
type Guard struct {
	limit float64
	repo  domain.SpendRepository
	log   *logging.ComponentLogger
	now   func() time.Time

	mu     sync.Mutex
	month  string
	spent  float64
	loaded bool

	writes    chan spendWrite
	done      chan struct{}
	closeOnce sync.Once
}

// NewGuard returns a guard with the given monthly limit; limit <= 0 means
// unlimited (spend is still recorded). repo may be nil.
func NewGuard(limit float64, repo domain.SpendRepository, log *logging.Logger) *Guard {
	if log == nil {
		log = logging.NewNop()
	}
	g := &Guard{
		limit: limit,
		repo:  repo,
		log:   log.WithComponent("budget"),
		now:   time.Now,
	}
	if repo != nil {
		g.writes = make(chan spendWrite, 256)
		g.done = make(chan struct{})
		go g.writer(g.writes)
	}
	return g
}

// SetClock overrides the time source. Tests only.
func (g *Guard) SetClock(now func() time.Time) { g.now = now }

// Charge reserves cost for one call to source. It returns an error wrapping
// ErrBudgetExceeded when the call would cross the limit and ctx is not forced.
func (g *Guard) Charge(ctx context.Context, source string, cost float64) error {
	if cost <= 0 {
		return nil
	}
	g.mu.Lock()
	g.rollMonthLocked(ctx)
	if g.limit > 0 && g.spent+cost > g.limit && !Forced(ctx) {
		spent := g.spent
		g.mu.Unlock()
		metrics.RecordBudgetSkip(source)
		g.log.Warn(ctx, "monthly budget exhausted, skipping paid call",
			logging.String("source", source),
			logging.Float64("spent_usd", spent),
			logging.Float64("limit_usd", g.limit))
		return fmt.Errorf("%s: %w", source, errs.ErrBudgetExceeded)
	}
	g.spent += cost
	spent := g.spent
	queued := true
	if g.writes != nil {
		select {
		case g.writes <- spendWrite{month: g.month, amount: cost}:
		default:
			queued = false
		}
	}
	g.mu.Unlock()

	metrics.SetBudgetSpend(spent)
	if !queued {
		g.log.Warn(ctx, "spend write queue full, dropping persisted increment",
			logging.String("source", source), logging.Float64("amount_usd", cost))
	}
	return nil
}

// Spent returns the current month's total.
func (g *Guard) Spent(ctx context.Context) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollMonthLocked(ctx)
	return g.spent
}

// Remaining returns what is left this month, or -1 when unlimited.
func (g *Guard) Remaining(ctx context.Context) float64 {
	if g.limit <= 0 {
		return -1
	}
	left := g.limit - g.Spent(ctx)
	if left < 0 {
		return 0
	}
	return left
}

// rollMonthLocked resets the total on a month boundary and seeds it from
// the repository the first time a month is seen.
func (g *Guard) rollMonthLocked(ctx context.Context) {
	month := MonthKey(g.now())
	if month == g.month && g.loaded {
		return
	}
	g.month = month
	g.spent = 0
	g.loaded = true
	if g.repo == nil {
		return
	}
	stored, err := g.repo.GetMonthlySpendCtx(ctx, month)
	if err != nil {
		g.log.Error(ctx, "load monthly spend", err, logging.String("month", month))
		return
	}
	g.spent = stored
}

func (g *Guard) writer(writes <-chan spendWrite) {
	defer close(g.done)
	for w := range writes {
		if err := g.repo.AddMonthlySpendCtx(context.Background(), w.month, w.amount); err != nil {
			g.log.Error(context.Background(), "persist monthly spend", err,
				logging.String("month", w.month), logging.Float64("amount_usd", w.amount))
		}
	}
}

// Close flushes pending spend writes. Charges after Close are not persisted.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		ch := g.writes
		g.writes = nil
		g.mu.Unlock()
		if ch == nil {
			return
		}
		close(ch)
		<-g.done
	})
}
