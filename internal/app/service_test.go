package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/swish/internal/adapters/mq/dispatcher"
	"github.com/okian/swish/internal/adapters/mq/mqtt"
	"github.com/okian/swish/internal/adapters/repository"
	service "github.com/okian/swish/internal/app"
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

// fakeBus hands the inbound queue to the test instead of dialing a broker.
type fakeBus struct {
	mu    sync.Mutex
	sink  mqtt.Sink
	ready chan struct{}
	err   error
}

func newFakeBus() *fakeBus {
	return &fakeBus{ready: make(chan struct{})}
}

func (b *fakeBus) factory(sink mqtt.Sink) service.Bus {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
	return b
}

func (b *fakeBus) Run(ctx context.Context) error {
	close(b.ready)
	if b.err != nil {
		return b.err
	}
	<-ctx.Done()
	return nil
}

func (b *fakeBus) Stats() mqtt.SubscriberStats {
	return mqtt.SubscriberStats{Connected: true}
}

func (b *fakeBus) send(kind model.Kind, payload string) bool {
	<-b.ready
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sink.Enqueue(context.Background(), model.Message{
		Kind:       kind,
		Topic:      mqtt.DefaultTopics.For(kind),
		Payload:    []byte(payload),
		ReceivedAt: time.Now(),
	})
}

func waitForShots(svc *service.Service, n int) []model.StoredShot {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		shots, err := svc.Recent(context.Background(), 10)
		if err == nil && len(shots) >= n {
			return shots
		}
		time.Sleep(5 * time.Millisecond)
	}
	shots, _ := svc.Recent(context.Background(), 10)
	return shots
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it reports not started with the default calibration", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeFalse)
			th := stats["thresholds"].(map[string]int64)
			So(th["tLowMs"], ShouldEqual, timing.DefaultEarlyBelow.Milliseconds())
			So(svc.LiveFeed(), ShouldBeNil)
		})

		Convey("Then listing before start fails", func() {
			_, err := svc.Recent(context.Background(), 5)
			So(errors.Is(err, repository.ErrStorage), ShouldBeTrue)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("Then it is not ready", func() {
			So(svc.Ready(context.Background()), ShouldEqual, service.ErrNotStarted)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service with a fake bus", t, func() {
		bus := newFakeBus()
		svc := service.New(
			service.WithBus(bus.factory),
			service.WithTickInterval(10*time.Millisecond),
			service.WithQueueSize(64),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then it is marked as started", func() {
				So(err, ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["observers"], ShouldEqual, 0)
				So(svc.LiveFeed(), ShouldNotBeNil)
				So(svc.Ready(ctx), ShouldBeNil)
			})

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("When stopping the service", func() {
				So(svc.Stop(ctx), ShouldBeNil)

				Convey("Then it is no longer started and stop is idempotent", func() {
					So(svc.GetStats()["started"], ShouldBeFalse)
					So(svc.Stop(ctx), ShouldBeNil)
				})
			})
		})
	})

	Convey("Given a service with inverted thresholds", t, func() {
		svc := service.New(
			service.WithBus(newFakeBus().factory),
			service.WithThresholds(timing.New(timing.WithBand(400*time.Millisecond, 150*time.Millisecond))),
		)

		Convey("Then start fails", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, timing.ErrInvalidThresholds), ShouldBeTrue)
		})
	})
}

func TestService_Pipeline(t *testing.T) {
	Convey("Given a running service", t, func() {
		bus := newFakeBus()
		svc := service.New(
			service.WithBus(bus.factory),
			service.WithTickInterval(10*time.Millisecond),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When a perfect scored shot arrives", func() {
			So(bus.send(model.KindRelease, `{"ts":1000,"grip_peak":500}`), ShouldBeTrue)
			So(bus.send(model.KindApex, `{"ts":1250}`), ShouldBeTrue)
			So(bus.send(model.KindScore, `{"ts":1800}`), ShouldBeTrue)

			Convey("Then it is persisted and listed", func() {
				shots := waitForShots(svc, 1)
				So(len(shots), ShouldEqual, 1)
				So(shots[0].Record, ShouldResemble, model.ShotRecord{
					TSRelease:      1000,
					TSApex:         1250,
					Classification: model.Perfect,
					Scored:         true,
					GripPeak:       500,
				})
				So(svc.GetStats()["totalShots"], ShouldEqual, int64(1))
			})
		})

		Convey("When a message is redelivered and another is malformed", func() {
			So(bus.send(model.KindRelease, `{"ts":2000,"grip_peak":10}`), ShouldBeTrue)
			So(bus.send(model.KindRelease, `{"ts":2000,"grip_peak":10}`), ShouldBeTrue)
			So(bus.send(model.KindApex, `not json`), ShouldBeTrue)
			So(bus.send(model.KindApex, `{"ts":2100}`), ShouldBeTrue)
			So(bus.send(model.KindScore, `{"ts":2200}`), ShouldBeTrue)

			Convey("Then one early shot is stored and the drops are counted", func() {
				shots := waitForShots(svc, 1)
				So(len(shots), ShouldEqual, 1)
				So(shots[0].Record.Classification, ShouldEqual, model.Early)

				stats := svc.GetStats()["dispatcher"].(dispatcher.Stats)
				So(stats.Duplicates, ShouldEqual, 1)
				So(stats.DecodeErrors, ShouldEqual, 1)
			})
		})

		Convey("When an orphan score arrives", func() {
			So(bus.send(model.KindScore, `{"ts":9000}`), ShouldBeTrue)
			So(bus.send(model.KindRelease, `{"ts":10000,"grip_peak":1}`), ShouldBeTrue)
			So(bus.send(model.KindApex, `{"ts":10500}`), ShouldBeTrue)
			So(bus.send(model.KindScore, `{"ts":10600}`), ShouldBeTrue)

			Convey("Then the anomaly is counted and the next shot still completes", func() {
				shots := waitForShots(svc, 1)
				So(len(shots), ShouldEqual, 1)
				So(shots[0].Record.Classification, ShouldEqual, model.Late)
				anomalies := svc.GetStats()["anomalies"].(map[string]int64)
				So(anomalies["orphan_score"], ShouldEqual, 1)
			})
		})
	})
}

func TestService_BusFailure(t *testing.T) {
	Convey("Given a bus that fails to connect", t, func() {
		bus := newFakeBus()
		bus.err = mqtt.ErrConnect
		svc := service.New(service.WithBus(bus.factory))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then stop reports the bus error", func() {
			<-bus.ready
			err := svc.Stop(ctx)
			So(errors.Is(err, mqtt.ErrConnect), ShouldBeTrue)
		})
	})
}
