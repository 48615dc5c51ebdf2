package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string `validate:"oneof=development staging production test"`
	Port string `validate:"required,numeric"`

	// Database
	DatabaseURL       string        `validate:"required"`
	DBDialect         string        `validate:"oneof=mysql sqlite"`
	DBMaxOpenConns    int           `validate:"gte=1"`
	DBMaxIdleConns    int           `validate:"gte=0,ltefield=DBMaxOpenConns"`
	DBConnMaxLifetime int           // minutes
	DBConnMaxIdleTime int           // minutes
	DBReadTimeout     time.Duration `validate:"gt=0"`
	DBWriteTimeout    time.Duration `validate:"gt=0"`
	DBAutoMigrate     bool

	// Source adapters
	GoogleMapsAPIKey       string
	GoogleCostPerCall      float64 `validate:"gte=0"`
	ProviderGatewayURL     string  `validate:"omitempty,url"`
	ProviderGatewayAPIKey  string
	ProviderGatewaySources []string      `validate:"dive,required"`
	GatewayCostPerCall     float64       `validate:"gte=0"`
	SourceTimeout          time.Duration `validate:"gt=0"`
	SourceRPS              float64       `validate:"gt=0"`
	SourceBurst            int           `validate:"gte=1"`
	AggregatorSources      []string      `validate:"dive,required"`

	// Budget; 0 disables the ceiling
	MonthlyBudgetUSD float64 `validate:"gte=0"`

	// Events
	EventsBackend string `validate:"oneof=gochannel nats"`
	NATSURL       string `validate:"required_if=EventsBackend nats"`
	NATSJetStream bool

	// Logging
	LogLevel  string `validate:"oneof=trace debug info warn warning error"`
	LogFormat string `validate:"oneof=json text"`
	LogOutput string
	LogAsync  bool

	// Metrics
	MetricsEnabled bool
	MetricsPath    string `validate:"startswith=/"`

	// Scheduler (robfig/cron specs, 5 fields)
	SchedulerEnabled    bool
	ScheduleTier1       string `validate:"required,cron"`
	ScheduleTier2       string `validate:"required,cron"`
	ScheduleTier3       string `validate:"required,cron"`
	ScheduleTier4       string `validate:"required,cron"`
	SchedulerBatchLimit int    `validate:"gte=1,lte=1000"`

	// Scoring profile (YAML) and reload polling
	ScoringProfilePath    string
	ProfileReloadInterval time.Duration

	DefaultDestination string
	DefaultCategories  []string
}

func Load() *Config {
	env := strings.ToLower(getEnv("ENV", "development"))

	dbMaxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "50"))
	dbMaxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "15"))
	dbConnMaxLifetime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_LIFETIME_MINUTES", "10"))
	dbConnMaxIdleTime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_IDLE_TIME_MINUTES", "5"))
	dbReadTO, _ := time.ParseDuration(getEnv("DB_READ_TIMEOUT", "8s"))
	dbWriteTO, _ := time.ParseDuration(getEnv("DB_WRITE_TIMEOUT", "6s"))
	autoMigrate, _ := strconv.ParseBool(getEnv("DB_AUTO_MIGRATE", strconv.FormatBool(env != "production")))

	googleCost, _ := strconv.ParseFloat(getEnv("GOOGLE_COST_PER_CALL", "0.032"), 64)
	gatewayCost, _ := strconv.ParseFloat(getEnv("GATEWAY_COST_PER_CALL", "0.005"), 64)
	sourceTO, _ := time.ParseDuration(getEnv("SOURCE_TIMEOUT", "10s"))
	sourceRPS, _ := strconv.ParseFloat(getEnv("SOURCE_RPS", "5"), 64)
	sourceBurst, _ := strconv.Atoi(getEnv("SOURCE_BURST", "5"))
	budget, _ := strconv.ParseFloat(getEnv("MONTHLY_BUDGET_USD", "0"), 64)

	jetStream, _ := strconv.ParseBool(getEnv("NATS_JETSTREAM", "false"))
	logAsync, _ := strconv.ParseBool(getEnv("LOG_ASYNC", "false"))

	metricsDefault := env != "test"
	metricsEnabled, _ := strconv.ParseBool(getEnv("METRICS_ENABLED", strconv.FormatBool(metricsDefault)))

	schedulerEnabled, _ := strconv.ParseBool(getEnv("SCHEDULER_ENABLED", "true"))
	batchLimit, _ := strconv.Atoi(getEnv("SCHEDULER_BATCH_LIMIT", "100"))
	reloadEvery, _ := time.ParseDuration(getEnv("PROFILE_RELOAD_INTERVAL", "30s"))

	return &Config{
		Env:  env,
		Port: getEnv("PORT", "8080"),

		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBDialect:         strings.ToLower(getEnv("DB_DIALECT", "mysql")),
		DBMaxOpenConns:    dbMaxOpenConns,
		DBMaxIdleConns:    dbMaxIdleConns,
		DBConnMaxLifetime: dbConnMaxLifetime,
		DBConnMaxIdleTime: dbConnMaxIdleTime,
		DBReadTimeout:     dbReadTO,
		DBWriteTimeout:    dbWriteTO,
		DBAutoMigrate:     autoMigrate,

		GoogleMapsAPIKey:       getEnv("GOOGLE_MAPS_API_KEY", ""),
		GoogleCostPerCall:      googleCost,
		ProviderGatewayURL:     getEnv("PROVIDER_GATEWAY_URL", ""),
		ProviderGatewayAPIKey:  getEnv("PROVIDER_GATEWAY_API_KEY", ""),
		ProviderGatewaySources: splitList(getEnv("PROVIDER_GATEWAY_SOURCES", "tripadvisor,thefork,booking,airbnb")),
		AggregatorSources:      splitList(getEnv("AGGREGATOR_SOURCES", "")),
		GatewayCostPerCall:     gatewayCost,
		SourceTimeout:          sourceTO,
		SourceRPS:              sourceRPS,
		SourceBurst:            sourceBurst,

		MonthlyBudgetUSD: budget,

		EventsBackend: strings.ToLower(getEnv("EVENTS_BACKEND", "gochannel")),
		NATSURL:       getEnv("NATS_URL", ""),
		NATSJetStream: jetStream,

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
		LogAsync:  logAsync,

		MetricsEnabled: metricsEnabled,
		MetricsPath:    getEnv("METRICS_PATH", "/metrics"),

		SchedulerEnabled:    schedulerEnabled,
		ScheduleTier1:       getEnv("SCHEDULE_TIER1", "0 * * * *"),
		ScheduleTier2:       getEnv("SCHEDULE_TIER2", "15 3 * * *"),
		ScheduleTier3:       getEnv("SCHEDULE_TIER3", "30 3 * * 1"),
		ScheduleTier4:       getEnv("SCHEDULE_TIER4", "45 3 1 * *"),
		SchedulerBatchLimit: batchLimit,

		ScoringProfilePath:    getEnv("SCORING_PROFILE", ""),
		ProfileReloadInterval: reloadEvery,

		DefaultDestination: getEnv("DEFAULT_DESTINATION", "calpe"),
		DefaultCategories:  splitList(getEnv("DEFAULT_CATEGORIES", "beach,museum,restaurant,viewpoint,park")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
