package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/swish/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a deduper with default options", t, func() {
		d := dedupe.New()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a key is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "a")
			second := d.SeenAndRecord(ctx, "a")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a deduper bounded to three keys", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(3))
		for _, k := range []string{"k1", "k2", "k3"} {
			So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
		}

		Convey("When a fourth key arrives", func() {
			So(d.SeenAndRecord(ctx, "k1"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "k4"), ShouldBeFalse)

			Convey("Then the oldest key is forgotten even if it was looked up", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a non-positive size", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(0))

		Convey("Then the default bound applies", func() {
			for i := 0; i < dedupe.DefaultMaxSize+10; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
			}
			So(d.Size(), ShouldEqual, dedupe.DefaultMaxSize)
		})
	})
}

func TestKey(t *testing.T) {
	Convey("Given two messages", t, func() {
		payload := []byte(`{"ts":1250}`)

		Convey("Then identical topic and payload give the same key", func() {
			So(dedupe.Key("basket/foot/apex", payload), ShouldEqual, dedupe.Key("basket/foot/apex", []byte(`{"ts":1250}`)))
		})

		Convey("Then the topic is part of the key", func() {
			So(dedupe.Key("basket/foot/apex", payload), ShouldNotEqual, dedupe.Key("basket/hoop/event", payload))
		})

		Convey("Then a different payload gives a different key", func() {
			So(dedupe.Key("basket/foot/apex", payload), ShouldNotEqual, dedupe.Key("basket/foot/apex", []byte(`{"ts":1251}`)))
		})
	})
}

func TestDeduperConcurrency(t *testing.T) {
	Convey("Given concurrent writers", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(2000))
		var wg sync.WaitGroup
		for g := 0; g < 10; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					d.SeenAndRecord(context.Background(), fmt.Sprintf("k-%d-%d", g, i))
				}
			}(g)
		}
		wg.Wait()

		Convey("Then every key is recorded once", func() {
			So(d.Size(), ShouldEqual, 1000)
		})
	})
}
