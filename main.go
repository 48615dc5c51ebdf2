package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"poi-tiering/internal/aggregator"
	"poi-tiering/internal/api"
	"poi-tiering/internal/budget"
	"poi-tiering/internal/classification"
	"poi-tiering/internal/constants"
	"poi-tiering/internal/criteria"
	"poi-tiering/internal/discovery"
	"poi-tiering/internal/infrastructure/repository"
	"poi-tiering/internal/models"
	"poi-tiering/internal/relevance"
	"poi-tiering/internal/scheduler"
	"poi-tiering/internal/sources"
	"poi-tiering/pkg/config"
	"poi-tiering/pkg/container"
	"poi-tiering/pkg/database"
	"poi-tiering/pkg/events"
	"poi-tiering/pkg/health"
	"poi-tiering/pkg/logging"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	c := container.New()
	provide(c, cfg)

	logger, err := container.Get[*logging.Logger](c)
	if err != nil {
		log.Fatal("logger:", err)
	}
	logger.Info("starting poi tiering service", logging.Any("config", cfg.GetConfigSummary()))

	var (
		engine  *classification.Engine
		disc    *discovery.Service
		sched   *scheduler.Scheduler
		watcher *config.ProfileWatcher
		router  http.Handler
	)
	if err := c.Invoke(func(e *classification.Engine, d *discovery.Service, s *scheduler.Scheduler, w *config.ProfileWatcher, r *api.Server) {
		engine, disc, sched, watcher, router = e, d, s, w, r.Router()
	}); err != nil {
		logger.Error("wiring failed", err)
		_ = c.Close()
		os.Exit(1)
	}

	// Hot-reload the scoring profile into the engine and discovery defaults.
	if watcher != nil {
		changes := watcher.Subscribe()
		watcher.Start()
		go func() {
			for chg := range changes {
				if chg.Err != nil {
					logger.Warn("scoring profile reload failed, keeping last good profile", logging.Error(chg.Err))
					continue
				}
				engine.ApplyProfile(chg.Profile)
				disc.SetDefaults(
					criteria.Default().WithProfile(chg.Profile.Criteria),
					aggregator.DefaultAggregatorConfig().ApplyProfile(chg.Profile))
				logger.Info("scoring profile applied", logging.String("path", cfg.ScoringProfilePath))
			}
		}()
	}

	if sched != nil {
		sched.Start()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", logging.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("received shutdown signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeoutDefault)
	defer cancel()
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler did not stop in time", logging.Error(err))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", err)
	}
	logger.Info("application shutdown complete")
	if err := c.Close(); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// provide registers every component. Singletons are closed newest first by
// c.Close, so the logger goes last and the budget guard flushes before the
// database closes.
func provide(c *container.Container, cfg *config.Config) {
	c.MustProvide(func() *config.Config { return cfg })

	c.MustProvide(func(cfg *config.Config) (*logging.Logger, error) {
		lc := logging.DefaultLogConfig()
		lc.Level = logging.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
		lc.Output = cfg.LogOutput
		lc.EnableAsync = cfg.LogAsync
		return logging.NewLogger(lc)
	})

	c.MustProvide(func(cfg *config.Config) (*database.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		db, err := database.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return db, nil
	})
	c.MustProvide(func(db *database.DB) *repository.SQLRepository { return repository.NewSQLRepository(db) })
	c.MustProvide(func(db *database.DB) *repository.SQLUnitOfWorkFactory { return repository.NewSQLUnitOfWorkFactory(db) })

	// A nil watcher means no scoring profile; compiled-in defaults apply.
	c.MustProvide(func(cfg *config.Config) (*config.ProfileWatcher, error) {
		if cfg.ScoringProfilePath == "" {
			return nil, nil
		}
		return config.NewProfileWatcher(cfg.ScoringProfilePath, cfg.ProfileReloadInterval)
	})

	c.MustProvide(func(cfg *config.Config, repo *repository.SQLRepository, l *logging.Logger) *budget.Guard {
		return budget.NewGuard(cfg.MonthlyBudgetUSD, repo, l)
	})

	c.MustProvide(func(cfg *config.Config, g *budget.Guard, l *logging.Logger) (*sources.Registry, error) {
		gc := sources.GuardConfig{Timeout: cfg.SourceTimeout, RPS: cfg.SourceRPS, Burst: cfg.SourceBurst}
		reg := sources.NewRegistry()
		if cfg.GoogleMapsAPIKey != "" {
			gp, err := sources.NewGooglePlaces(cfg.GoogleMapsAPIKey, cfg.GoogleCostPerCall)
			if err != nil {
				return nil, err
			}
			reg.Register(sources.NewGuarded(gp, gc, g, l))
		}
		if cfg.ProviderGatewayURL != "" {
			client := &http.Client{Timeout: cfg.SourceTimeout}
			for _, name := range cfg.ProviderGatewaySources {
				a := sources.NewHTTPJSON(name, cfg.ProviderGatewayURL, cfg.ProviderGatewayAPIKey, cfg.GatewayCostPerCall, client)
				reg.Register(sources.NewGuarded(a, gc, g, l))
			}
		}
		if len(reg.Names()) == 0 {
			l.Warn("no sources configured; discovery and aggregation will find nothing")
		}
		return reg, nil
	})

	c.MustProvide(func(cfg *config.Config, l *logging.Logger) (events.Publisher, error) {
		if cfg.EventsBackend == "nats" {
			return events.NewNATS(events.NATSConfig{URL: cfg.NATSURL, JetStream: cfg.NATSJetStream}, l)
		}
		pub, _ := events.NewGoChannel(l)
		return pub, nil
	})

	c.MustProvide(func(cfg *config.Config, w *config.ProfileWatcher, reg *sources.Registry, l *logging.Logger) (*aggregator.Aggregator, error) {
		if _, err := reg.Select(cfg.AggregatorSources); err != nil {
			return nil, err
		}
		ac := aggregator.DefaultAggregatorConfig().ApplyProfile(current(w))
		ac.Enabled = cfg.AggregatorSources
		return aggregator.New(ac, reg, l), nil
	})
	c.MustProvide(func(w *config.ProfileWatcher) *relevance.Scorer {
		return relevance.NewScorer(relevance.DefaultRelevanceConfig().ApplyProfile(current(w)))
	})

	c.MustProvide(func(uow *repository.SQLUnitOfWorkFactory, repo *repository.SQLRepository, agg *aggregator.Aggregator, sc *relevance.Scorer, pub events.Publisher, l *logging.Logger) *classification.Engine {
		return classification.NewEngine(classification.DefaultClassificationConfig(), classification.Deps{
			UoW:        uow,
			Repo:       repo,
			Aggregator: agg,
			Scorer:     sc,
			Publisher:  pub,
			Logger:     l,
		})
	})

	c.MustProvide(func(w *config.ProfileWatcher, reg *sources.Registry, repo *repository.SQLRepository, uow *repository.SQLUnitOfWorkFactory, eng *classification.Engine, sc *relevance.Scorer, pub events.Publisher, l *logging.Logger) *discovery.Service {
		p := current(w)
		dc := discovery.DefaultDiscoveryConfig()
		dc.Destinations = sc.Config().Destinations
		var crit criteria.Criteria
		if p != nil {
			crit = criteria.Default().WithProfile(p.Criteria)
		}
		return discovery.NewService(dc, discovery.Deps{
			Registry:   reg,
			Lookup:     repo,
			Runs:       repo,
			UoW:        uow,
			Classifier: eng,
			Publisher:  pub,
			Logger:     l,
			Criteria:   crit,
			Sources:    aggregator.DefaultAggregatorConfig().ApplyProfile(p),
		})
	})

	c.MustProvide(func(cfg *config.Config, eng *classification.Engine, l *logging.Logger) (*scheduler.Scheduler, error) {
		if !cfg.SchedulerEnabled {
			return nil, nil
		}
		sc := scheduler.DefaultSchedulerConfig()
		sc.Specs = map[models.Tier]string{
			models.Tier1: cfg.ScheduleTier1,
			models.Tier2: cfg.ScheduleTier2,
			models.Tier3: cfg.ScheduleTier3,
			models.Tier4: cfg.ScheduleTier4,
		}
		sc.BatchLimit = cfg.SchedulerBatchLimit
		return scheduler.New(sc, eng, l)
	})

	c.MustProvide(func(db *database.DB, reg *sources.Registry, l *logging.Logger) *health.Manager {
		m := health.NewManager(health.DefaultHealthConfig(), l)
		m.Register(health.NewDatabaseChecker(db, "database"))
		var breakers []health.BreakerState
		for _, name := range reg.Names() {
			if a, ok := reg.Get(name); ok {
				if g, ok := a.(*sources.Guarded); ok {
					breakers = append(breakers, g.Breaker())
				}
			}
		}
		m.Register(health.NewBreakerChecker(breakers...))
		return m
	})

	c.MustProvide(func(cfg *config.Config, d *discovery.Service, eng *classification.Engine, s *scheduler.Scheduler, h *health.Manager, l *logging.Logger) *api.Server {
		deps := api.Deps{
			Discovery:          d,
			Classifier:         eng,
			Health:             h.Handler(),
			Logger:             l,
			DefaultDestination: cfg.DefaultDestination,
		}
		if s != nil {
			deps.Scheduler = s
		}
		if cfg.MetricsEnabled {
			deps.MetricsPath = cfg.MetricsPath
		}
		return api.New(deps)
	})
}

func current(w *config.ProfileWatcher) *config.Profile {
	if w == nil {
		return nil
	}
	return w.Current()
}
