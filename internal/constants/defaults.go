package constants

import "time"

// Centralized default values for timeouts, intervals, and related settings.
// Environment/config may override where supported.

const (
	// Database
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second

	// Source adapters
	SourceCallTimeoutDefault = 10 * time.Second
	SourceBreakerOpenFor     = 30 * time.Second
	SourceBreakerInterval    = 60 * time.Second
	SourceRateDefault        = 5.0 // requests per second per source
	SourceBurstDefault       = 5

	// Classification refresh intervals per tier
	Tier1UpdateInterval = time.Hour
	Tier2UpdateInterval = 24 * time.Hour
	Tier3UpdateInterval = 7 * 24 * time.Hour
	Tier4UpdateInterval = 30 * 24 * time.Hour

	// Scheduler
	SchedulerBatchLimitDefault = 100
	SchedulerJobTimeoutDefault = 30 * time.Minute

	// App shutdown
	GracefulShutdownTimeoutDefault = 10 * time.Second

	// Event publishing
	EventsPublishTimeoutDefault = 5 * time.Second
)
