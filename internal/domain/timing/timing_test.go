package timing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/timing"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("Given T_low=150ms and T_high=400ms", t, func() {
		th := timing.New(timing.WithBand(150*time.Millisecond, 400*time.Millisecond))

		Convey("Then intervals below T_low are EARLY", func() {
			So(th.Classify(-20), ShouldEqual, model.Early)
			So(th.Classify(0), ShouldEqual, model.Early)
			So(th.Classify(149), ShouldEqual, model.Early)
		})

		Convey("Then both boundaries are PERFECT", func() {
			So(th.Classify(150), ShouldEqual, model.Perfect)
			So(th.Classify(250), ShouldEqual, model.Perfect)
			So(th.Classify(400), ShouldEqual, model.Perfect)
		})

		Convey("Then intervals above T_high are LATE", func() {
			So(th.Classify(401), ShouldEqual, model.Late)
			So(th.Classify(1200), ShouldEqual, model.Late)
		})
	})
}

func TestWindows(t *testing.T) {
	Convey("Given A_max=1500ms and S_max=1000ms", t, func() {
		th := timing.New(timing.WithApexWindow(1500*time.Millisecond), timing.WithScoreWindow(time.Second))

		Convey("Then the windows are inclusive", func() {
			So(th.ApexExpired(1500), ShouldBeFalse)
			So(th.ApexExpired(1501), ShouldBeTrue)
			So(th.ScoreExpired(1000), ShouldBeFalse)
			So(th.ScoreExpired(1001), ShouldBeTrue)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given the default thresholds", t, func() {
		th := timing.New()

		Convey("Then they validate", func() {
			So(th.Validate(), ShouldBeNil)
			So(th.EarlyBelow, ShouldEqual, timing.DefaultEarlyBelow)
			So(th.ScoreWindow, ShouldEqual, timing.DefaultScoreWindow)
		})

		Convey("When the band is inverted", func() {
			err := timing.New(timing.WithBand(400*time.Millisecond, 150*time.Millisecond)).Validate()

			Convey("Then validation fails with ErrInvalidThresholds", func() {
				So(errors.Is(err, timing.ErrInvalidThresholds), ShouldBeTrue)
			})
		})

		Convey("When a window is zero", func() {
			So(errors.Is(timing.New(timing.WithApexWindow(0)).Validate(), timing.ErrInvalidThresholds), ShouldBeTrue)
			So(errors.Is(timing.New(timing.WithScoreWindow(0)).Validate(), timing.ErrInvalidThresholds), ShouldBeTrue)
		})

		Convey("When T_low is negative", func() {
			So(errors.Is(timing.New(timing.WithBand(-time.Millisecond, time.Second)).Validate(), timing.ErrInvalidThresholds), ShouldBeTrue)
		})
	})
}
