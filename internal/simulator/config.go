package simulator

import "time"

// Defaults for a simulation run.
const (
	DefaultShots       = 20
	DefaultGap         = 300 * time.Millisecond
	DefaultScoredRatio = 0.6
	DefaultNoise       = 0.1
	// settle is added to the score window before an idle-only step so the
	// service's expiry tick has closed the previous attempt.
	settle = 250 * time.Millisecond
	// margin keeps wall-clock delivery inside the configured windows.
	margin = 200 * time.Millisecond

	minGripPeak = 100
	maxGripPeak = 1000
)

// Config holds configuration for a simulation run.
type Config struct {
	Shots       int           // Number of shot attempts to publish
	Gap         time.Duration // Quiet time between attempts
	ScoredRatio float64       // Share of attempts followed by a score
	Noise       float64       // Probability of an orphan event before an attempt
	Seed        uint64        // Random seed; 0 picks one from the clock
	BaseURL     string        // Service URL used to verify results, empty to skip
	Timeout     time.Duration // HTTP request timeout
	Verbose     bool          // Log every published event
}

// Stats holds run statistics.
type Stats struct {
	Attempts   int
	Events     int
	Orphans    int
	Failed     int
	Expected   int
	ByScenario map[string]int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
