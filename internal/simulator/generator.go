package simulator

import (
	"math/rand/v2"
	"time"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/timing"
)

// Scenario names the shape of one planned attempt.
type Scenario int

// Scenarios.
const (
	ScenarioEarly Scenario = iota
	ScenarioPerfect
	ScenarioLate
)

func (s Scenario) String() string {
	switch s {
	case ScenarioEarly:
		return "early"
	case ScenarioPerfect:
		return "perfect"
	case ScenarioLate:
		return "late"
	default:
		return "unknown"
	}
}

// Step is one event to publish After the previous step.
type Step struct {
	Event model.Event
	After time.Duration
}

// Plan is one attempt: its events and the record the service should store.
type Plan struct {
	Scenario Scenario
	Scored   bool
	Orphan   bool
	Steps    []Step
	Expect   model.ShotRecord
}

// Generator builds attempt plans whose device timestamps advance with the
// wall-clock delays between steps.
type Generator struct {
	th          timing.Thresholds
	rng         *rand.Rand
	gap         time.Duration
	scoredRatio float64
	noise       float64

	clock int64 // device time of the last step, in ms
	quiet time.Duration
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSeed makes the plan sequence reproducible.
func WithSeed(seed uint64) GeneratorOption {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithGap sets the quiet time between attempts.
func WithGap(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.gap = d
		}
	}
}

// WithScoredRatio sets the share of attempts followed by a score.
func WithScoredRatio(r float64) GeneratorOption {
	return func(g *Generator) {
		if r >= 0 && r <= 1 {
			g.scoredRatio = r
		}
	}
}

// WithNoise sets the probability of an orphan event before an attempt.
func WithNoise(p float64) GeneratorOption {
	return func(g *Generator) {
		if p >= 0 && p <= 1 {
			g.noise = p
		}
	}
}

// WithStart sets the device time of the first step.
func WithStart(ts int64) GeneratorOption {
	return func(g *Generator) {
		if ts >= 0 {
			g.clock = ts
		}
	}
}

// NewGenerator creates a Generator for the given calibration.
func NewGenerator(th timing.Thresholds, opts ...GeneratorOption) *Generator {
	g := &Generator{
		th:          th,
		gap:         DefaultGap,
		scoredRatio: DefaultScoredRatio,
		noise:       DefaultNoise,
		clock:       time.Now().UnixMilli(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		WithSeed(uint64(time.Now().UnixNano()))(g)
	}
	return g
}

// Plans returns n consecutive plans.
func (g *Generator) Plans(n int) []Plan {
	plans := make([]Plan, 0, n)
	for range n {
		plans = append(plans, g.Next())
	}
	return plans
}

// Next returns the following attempt plan.
func (g *Generator) Next() Plan {
	scenario := g.pickScenario()
	p := Plan{
		Scenario: scenario,
		Scored:   g.rng.Float64() < g.scoredRatio,
		Orphan:   g.rng.Float64() < g.noise,
	}

	wait := max(g.gap, g.quiet)
	if p.Orphan {
		// An apex or score while idle is dropped and leaves no trace.
		ts := g.advance(wait)
		var ev model.Event = model.ScoreEvent{TS: ts}
		if g.rng.IntN(2) == 0 {
			ev = model.ApexEvent{TS: ts}
		}
		p.Steps = append(p.Steps, Step{Event: ev, After: wait})
		wait = g.gap
	}

	grip := minGripPeak + g.rng.IntN(maxGripPeak-minGripPeak+1)
	release := g.advance(wait)
	p.Steps = append(p.Steps, Step{Event: model.ReleaseEvent{TS: release, GripPeak: grip}, After: wait})

	elapsed := g.pickElapsed(scenario)
	apex := g.advance(ms(elapsed))
	p.Steps = append(p.Steps, Step{Event: model.ApexEvent{TS: apex}, After: ms(elapsed)})

	if p.Scored {
		delay := g.pickScoreDelay()
		score := g.advance(delay)
		p.Steps = append(p.Steps, Step{Event: model.ScoreEvent{TS: score}, After: delay})
		g.quiet = 0
	} else {
		// The attempt stays open until the score window lapses on the
		// service's clock.
		g.quiet = g.th.ScoreWindow + settle
	}

	p.Expect = model.ShotRecord{
		TSRelease:      release,
		TSApex:         apex,
		Classification: g.th.Classify(elapsed),
		Scored:         p.Scored,
		GripPeak:       grip,
	}
	return p
}

// Tail is how long to wait after the last plan before its record is stored.
func (g *Generator) Tail() time.Duration {
	return g.quiet + settle
}

func (g *Generator) pickScenario() Scenario {
	if g.th.EarlyBelow <= 0 {
		return Scenario(1 + g.rng.IntN(2))
	}
	return Scenario(g.rng.IntN(3))
}

// pickElapsed returns a release-to-apex interval in ms inside the band.
func (g *Generator) pickElapsed(s Scenario) int64 {
	low := g.th.EarlyBelow.Milliseconds()
	high := g.th.LateAbove.Milliseconds()
	switch s {
	case ScenarioEarly:
		return g.between(0, low-1)
	case ScenarioLate:
		limit := (g.th.ApexWindow - margin).Milliseconds()
		if limit <= high+1 {
			limit = high + 1
		}
		return g.between(high+1, limit)
	default:
		return g.between(low, high)
	}
}

func (g *Generator) pickScoreDelay() time.Duration {
	upper := max(g.th.ScoreWindow/2, time.Millisecond)
	return ms(g.between(1, upper.Milliseconds()))
}

// between returns a value in [lo, hi].
func (g *Generator) between(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Int64N(hi-lo+1)
}

func (g *Generator) advance(d time.Duration) int64 {
	g.clock += d.Milliseconds()
	return g.clock
}

func ms(n int64) time.Duration {
	return time.Duration(n) * time.Millisecond
}
