package classifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/swish/internal/domain/classifier"
	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/timing"
	"github.com/okian/swish/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

// harness wires a classifier with T_low=150, T_high=400, A_max=1500, S_max=1000.
type harness struct {
	c         *classifier.Classifier
	clock     *fakeClock
	anomalies []string
}

func newHarness() *harness {
	h := &harness{clock: &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}}
	th := timing.New(
		timing.WithBand(150*time.Millisecond, 400*time.Millisecond),
		timing.WithApexWindow(1500*time.Millisecond),
		timing.WithScoreWindow(1000*time.Millisecond),
	)
	h.c = classifier.New(th,
		classifier.WithClock(h.clock.Now),
		classifier.WithAnomalyHook(func(a classifier.Anomaly) {
			h.anomalies = append(h.anomalies, a.Err.Type)
		}),
	)
	return h
}

func (h *harness) process(ev model.Event) (model.ShotRecord, bool) {
	return h.c.Process(context.Background(), ev)
}

func (h *harness) tick() (model.ShotRecord, bool) {
	return h.c.Tick(context.Background(), h.clock.Now())
}

func TestScenarios(t *testing.T) {
	Convey("Given an idle classifier", t, func() {
		h := newHarness()
		So(h.c.State(), ShouldEqual, classifier.StateIdle)

		Convey("When a perfect release/apex pair is followed by a score in window", func() {
			_, emitted := h.process(model.ReleaseEvent{TS: 1000, GripPeak: 500})
			So(emitted, ShouldBeFalse)
			So(h.c.State(), ShouldEqual, classifier.StateAwaitingApex)

			h.clock.Advance(250 * time.Millisecond)
			_, emitted = h.process(model.ApexEvent{TS: 1250})
			So(emitted, ShouldBeFalse)
			So(h.c.State(), ShouldEqual, classifier.StateAwaitingScore)

			h.clock.Advance(550 * time.Millisecond)
			rec, emitted := h.process(model.ScoreEvent{TS: 1800})

			Convey("Then exactly one scored PERFECT record is emitted", func() {
				So(emitted, ShouldBeTrue)
				So(rec, ShouldResemble, model.ShotRecord{
					TSRelease:      1000,
					TSApex:         1250,
					Classification: model.Perfect,
					Scored:         true,
					GripPeak:       500,
				})
				So(h.c.State(), ShouldEqual, classifier.StateIdle)
			})

			Convey("And duplicate scores afterwards are orphans, not new records", func() {
				_, again := h.process(model.ScoreEvent{TS: 1810})
				So(again, ShouldBeFalse)
				_, again = h.tick()
				So(again, ShouldBeFalse)
				So(h.anomalies, ShouldResemble, []string{"orphan_score"})
			})
		})

		Convey("When a late pair gets no score before S_max elapses", func() {
			h.process(model.ReleaseEvent{TS: 0, GripPeak: 320})
			h.clock.Advance(1200 * time.Millisecond)
			h.process(model.ApexEvent{TS: 1200})

			h.clock.Advance(999 * time.Millisecond)
			_, early := h.tick()
			So(early, ShouldBeFalse)

			h.clock.Advance(2 * time.Millisecond)
			rec, emitted := h.tick()

			Convey("Then exactly one unscored LATE record is emitted", func() {
				So(emitted, ShouldBeTrue)
				So(rec.Classification, ShouldEqual, model.Late)
				So(rec.Scored, ShouldBeFalse)
				So(rec.TSRelease, ShouldEqual, 0)
				So(rec.TSApex, ShouldEqual, 1200)
				So(h.c.State(), ShouldEqual, classifier.StateIdle)

				_, again := h.tick()
				So(again, ShouldBeFalse)
			})
		})

		Convey("When an apex arrives with no prior release", func() {
			rec, emitted := h.process(model.ApexEvent{TS: 500})

			Convey("Then it is dropped and the classifier stays idle", func() {
				So(emitted, ShouldBeFalse)
				So(rec, ShouldResemble, model.ShotRecord{})
				So(h.c.State(), ShouldEqual, classifier.StateIdle)
				So(h.anomalies, ShouldResemble, []string{"orphan_apex"})
			})
		})

		Convey("When a release gets no apex within A_max", func() {
			h.process(model.ReleaseEvent{TS: 100, GripPeak: 90})
			h.clock.Advance(1500 * time.Millisecond)
			_, emitted := h.tick()
			So(emitted, ShouldBeFalse)
			So(h.c.State(), ShouldEqual, classifier.StateAwaitingApex)

			h.clock.Advance(time.Millisecond)
			_, emitted = h.tick()

			Convey("Then the attempt expires silently", func() {
				So(emitted, ShouldBeFalse)
				So(h.c.State(), ShouldEqual, classifier.StateIdle)
				So(h.anomalies, ShouldBeEmpty)
			})

			Convey("And a late apex is an orphan", func() {
				_, emitted = h.process(model.ApexEvent{TS: 1700})
				So(emitted, ShouldBeFalse)
				So(h.anomalies, ShouldResemble, []string{"orphan_apex"})
			})
		})
	})
}

func TestClassificationBoundaries(t *testing.T) {
	Convey("Given release/apex pairs around the thresholds", t, func() {
		cases := []struct {
			elapsed int64
			want    model.Classification
		}{
			{0, model.Early},
			{149, model.Early},
			{150, model.Perfect},
			{275, model.Perfect},
			{400, model.Perfect},
			{401, model.Late},
			{1500, model.Late},
		}

		Convey("Then each pair is classified deterministically", func() {
			for _, tc := range cases {
				h := newHarness()
				h.process(model.ReleaseEvent{TS: 5000, GripPeak: 1})
				h.process(model.ApexEvent{TS: 5000 + tc.elapsed})
				h.clock.Advance(1001 * time.Millisecond)
				rec, emitted := h.tick()
				So(emitted, ShouldBeTrue)
				So(rec.Classification, ShouldEqual, tc.want)
			}
		})
	})
}

func TestOverlapAndResidualState(t *testing.T) {
	Convey("Given an open attempt", t, func() {
		h := newHarness()
		h.process(model.ReleaseEvent{TS: 1000, GripPeak: 500})

		Convey("When a second release arrives inside the apex window", func() {
			h.clock.Advance(100 * time.Millisecond)
			_, emitted := h.process(model.ReleaseEvent{TS: 1100, GripPeak: 999})
			So(emitted, ShouldBeFalse)

			Convey("Then it is rejected and the first attempt is kept", func() {
				So(h.anomalies, ShouldResemble, []string{"duplicate_release"})
				h.process(model.ApexEvent{TS: 1250})
				rec, emitted := h.process(model.ScoreEvent{TS: 1400})
				So(emitted, ShouldBeTrue)
				So(rec.TSRelease, ShouldEqual, 1000)
				So(rec.GripPeak, ShouldEqual, 500)
			})
		})

		Convey("When a second release arrives after the attempt went stale", func() {
			h.clock.Advance(1600 * time.Millisecond)
			_, emitted := h.process(model.ReleaseEvent{TS: 2600, GripPeak: 42})
			So(emitted, ShouldBeFalse)

			Convey("Then it starts a fresh attempt", func() {
				So(h.anomalies, ShouldBeEmpty)
				So(h.c.State(), ShouldEqual, classifier.StateAwaitingApex)
				h.process(model.ApexEvent{TS: 2700})
				h.clock.Advance(1001 * time.Millisecond)
				rec, emitted := h.tick()
				So(emitted, ShouldBeTrue)
				So(rec.TSRelease, ShouldEqual, 2600)
				So(rec.GripPeak, ShouldEqual, 42)
				So(rec.Classification, ShouldEqual, model.Early)
			})
		})

		Convey("When a release arrives after an unscored pair went stale", func() {
			h.process(model.ApexEvent{TS: 1300})
			h.clock.Advance(1001 * time.Millisecond)
			rec, emitted := h.process(model.ReleaseEvent{TS: 4000, GripPeak: 7})

			Convey("Then the stale pair is emitted and the release opens a new attempt", func() {
				So(emitted, ShouldBeTrue)
				So(rec.TSRelease, ShouldEqual, 1000)
				So(rec.Scored, ShouldBeFalse)
				So(h.c.State(), ShouldEqual, classifier.StateAwaitingApex)
			})
		})

		Convey("When a second release arrives beyond A_max in device time within the same instant", func() {
			_, emitted := h.process(model.ReleaseEvent{TS: 5000, GripPeak: 500})
			So(emitted, ShouldBeFalse)

			Convey("Then the stale attempt is discarded and the new shot is kept", func() {
				So(h.anomalies, ShouldBeEmpty)
				So(h.c.State(), ShouldEqual, classifier.StateAwaitingApex)
				h.process(model.ApexEvent{TS: 5250})
				h.clock.Advance(3 * time.Second)
				rec, emitted := h.tick()
				So(emitted, ShouldBeTrue)
				So(rec.TSRelease, ShouldEqual, 5000)
				So(rec.TSApex, ShouldEqual, 5250)
				So(rec.GripPeak, ShouldEqual, 500)
				So(rec.Classification, ShouldEqual, model.Perfect)
			})
		})

		Convey("When a release arrives beyond S_max after the apex within the same instant", func() {
			h.process(model.ApexEvent{TS: 1250})
			rec, emitted := h.process(model.ReleaseEvent{TS: 2300, GripPeak: 77})

			Convey("Then the pair is emitted unscored and the release opens a new attempt", func() {
				So(emitted, ShouldBeTrue)
				So(rec.TSRelease, ShouldEqual, 1000)
				So(rec.TSApex, ShouldEqual, 1250)
				So(rec.Scored, ShouldBeFalse)
				So(h.anomalies, ShouldBeEmpty)
				So(h.c.State(), ShouldEqual, classifier.StateAwaitingApex)
			})
		})

		Convey("When a release arrives inside S_max after the apex", func() {
			h.process(model.ApexEvent{TS: 1250})
			_, emitted := h.process(model.ReleaseEvent{TS: 2250, GripPeak: 77})

			Convey("Then it is rejected as a duplicate", func() {
				So(emitted, ShouldBeFalse)
				So(h.anomalies, ShouldResemble, []string{"duplicate_release"})
				So(h.c.State(), ShouldEqual, classifier.StateAwaitingScore)
			})
		})

		Convey("When the attempt completes and another shot follows", func() {
			h.process(model.ApexEvent{TS: 1200})
			first, _ := h.process(model.ScoreEvent{TS: 1500})
			h.process(model.ReleaseEvent{TS: 3000, GripPeak: 10})
			h.process(model.ApexEvent{TS: 3500})
			h.clock.Advance(1001 * time.Millisecond)
			second, emitted := h.tick()

			Convey("Then nothing leaks from the first attempt", func() {
				So(first.Scored, ShouldBeTrue)
				So(emitted, ShouldBeTrue)
				So(second, ShouldResemble, model.ShotRecord{
					TSRelease:      3000,
					TSApex:         3500,
					Classification: model.Late,
					Scored:         false,
					GripPeak:       10,
				})
			})
		})

		Convey("When a score precedes the apex", func() {
			_, emitted := h.process(model.ScoreEvent{TS: 1100})
			So(emitted, ShouldBeFalse)
			So(h.anomalies, ShouldResemble, []string{"score_before_apex"})
			So(h.c.State(), ShouldEqual, classifier.StateAwaitingApex)
		})

		Convey("When the apex is duplicated", func() {
			h.process(model.ApexEvent{TS: 1200})
			h.process(model.ApexEvent{TS: 1210})
			So(h.anomalies, ShouldResemble, []string{"duplicate_apex"})
			So(h.c.State(), ShouldEqual, classifier.StateAwaitingScore)
		})

		Convey("When the apex timestamp is beyond A_max", func() {
			_, emitted := h.process(model.ApexEvent{TS: 2501})

			Convey("Then the attempt is discarded without a record", func() {
				So(emitted, ShouldBeFalse)
				So(h.anomalies, ShouldResemble, []string{"apex_out_of_window"})
				So(h.c.State(), ShouldEqual, classifier.StateIdle)
			})
		})

		Convey("When the score timestamp is beyond S_max", func() {
			h.process(model.ApexEvent{TS: 1200})
			rec, emitted := h.process(model.ScoreEvent{TS: 2201})

			Convey("Then the pair is emitted unscored", func() {
				So(emitted, ShouldBeTrue)
				So(rec.Scored, ShouldBeFalse)
				So(h.anomalies, ShouldResemble, []string{"score_out_of_window"})
			})
		})

		Convey("When the classifier is reset", func() {
			h.process(model.ApexEvent{TS: 1200})
			h.c.Reset(context.Background())

			Convey("Then the open attempt is discarded without emission", func() {
				So(h.c.State(), ShouldEqual, classifier.StateIdle)
				h.clock.Advance(5 * time.Second)
				_, emitted := h.tick()
				So(emitted, ShouldBeFalse)
			})
		})
	})
}

func TestAnomalyErrors(t *testing.T) {
	Convey("Given the anomaly sentinels", t, func() {
		Convey("Then each matches ErrAnomaly but not its siblings", func() {
			So(errors.Is(classifier.ErrOrphanApex, classifier.ErrAnomaly), ShouldBeTrue)
			So(errors.Is(classifier.ErrDuplicateRelease, classifier.ErrAnomaly), ShouldBeTrue)
			So(errors.Is(classifier.ErrOrphanApex, classifier.ErrOrphanScore), ShouldBeFalse)
			So(classifier.ErrOrphanScore.Error(), ShouldEqual, "anomalous event: orphan_score")
		})

		Convey("Then states print their names", func() {
			So(classifier.StateAwaitingScore.String(), ShouldEqual, "AWAITING_SCORE")
		})
	})
}
