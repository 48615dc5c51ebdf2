package constants

// Centralized threshold values used across the ingestion and scoring
// pipeline. These are not configuration knobs; use pkg/config and the
// scoring profile for tunable settings.

const (
	// Deduplication
	DedupMaxDistanceMeters = 50.0
	DedupMinNameSimilarity = 0.85

	// Cross-validation best-match acceptance (strictly greater than)
	AggregatorMinMatchSimilarity = 0.6
	AggregatorMinValidSources    = 2

	// Tier score thresholds (inclusive lower bounds)
	Tier1MinScore = 8.5
	Tier2MinScore = 7.0
	Tier3MinScore = 5.0

	// Score bounds
	ScoreMin = 0.0
	ScoreMax = 10.0

	// Circuit breaker trip rule
	CircuitMinRequests  = 5
	CircuitFailureRatio = 0.6
)
