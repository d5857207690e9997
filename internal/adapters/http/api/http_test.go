package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/swish/internal/adapters/http/api"
	"github.com/okian/swish/internal/adapters/repository"
	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	shots     []model.StoredShot
	err       error
	lastLimit int
	notReady  error
}

func (m *mockDeps) Ready(context.Context) error {
	return m.notReady
}

func (m *mockDeps) Recent(_ context.Context, n int) ([]model.StoredShot, error) {
	m.lastLimit = n
	if m.err != nil {
		return nil, m.err
	}
	if n > len(m.shots) {
		return m.shots, nil
	}
	return m.shots[:n], nil
}

func (m *mockDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"status": "running", "storageFailures": 0}
}

func newMux(deps *mockDeps, live http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, live, 50).Register(context.Background(), mux)
	return mux
}

func get(mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return w
}

func TestShotsEndpoint(t *testing.T) {
	created := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	stored := []model.StoredShot{
		{ID: 2, Record: model.ShotRecord{TSRelease: 3000, TSApex: 3500, Classification: model.Late, GripPeak: 10}, CreatedAt: created},
		{ID: 1, Record: model.ShotRecord{TSRelease: 1000, TSApex: 1250, Classification: model.Perfect, Scored: true, GripPeak: 500}, CreatedAt: created},
	}

	Convey("Given the shots endpoint", t, func() {
		deps := &mockDeps{shots: stored}
		mux := newMux(deps, nil)

		Convey("When no limit is given", func() {
			w := get(mux, "/shots")

			Convey("Then the default limit is used and shots come back newest first", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, api.DefaultListLimit)
				var body types.ShotList
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(len(body.Shots), ShouldEqual, 2)
				So(body.Shots[0].ID, ShouldEqual, 2)
				So(body.Shots[1].Label, ShouldEqual, "PERFECT")
				So(body.Shots[1].Scored, ShouldBeTrue)
				So(body.Shots[1].CreatedAt.Equal(created), ShouldBeTrue)
			})
		})

		Convey("When a valid limit is given", func() {
			w := get(mux, "/shots?limit=1")

			Convey("Then it is honoured", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 1)
			})
		})

		Convey("When the store is empty", func() {
			deps.shots = nil
			w := get(mux, "/shots")

			Convey("Then an empty list is returned, not null", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"shots":[]`)
			})
		})

		Convey("When the limit is malformed", func() {
			for _, q := range []string{"abc", "0", "-3"} {
				w := get(mux, "/shots?limit="+q)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "bad_request")
			}
		})

		Convey("When the limit exceeds the cap", func() {
			w := get(mux, "/shots?limit=51")

			Convey("Then limit_exceeded is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "limit_exceeded")
			})
		})

		Convey("When the store fails", func() {
			deps.err = errors.Join(repository.ErrStorage, errors.New("database is locked"))
			w := get(mux, "/shots")

			Convey("Then a 500 with the cause is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldContainSubstring, "internal_error")
				So(w.Body.String(), ShouldContainSubstring, "database is locked")
			})
		})

		Convey("When the method is not GET", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/shots", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestOtherEndpoints(t *testing.T) {
	Convey("Given the server routes", t, func() {
		live := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		mux := newMux(&mockDeps{}, live)

		Convey("Then /stats returns the provider's view", func() {
			w := get(mux, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"running"`)
		})

		Convey("Then /healthz reports readiness as JSON", func() {
			w := get(mux, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then /healthz serves Prometheus metrics to scrapers", func() {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			req.Header.Set("Accept", "text/plain;version=0.0.4")
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "swish_")
		})

		Convey("Then /metrics serves Prometheus metrics", func() {
			w := get(mux, "/metrics")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "swish_")
		})

		Convey("Then /ws reaches the live feed", func() {
			w := get(mux, "/ws")
			So(w.Code, ShouldEqual, http.StatusTeapot)
		})
	})
}

func TestHealthUnavailable(t *testing.T) {
	Convey("Given a pipeline that is not ready", t, func() {
		mux := newMux(&mockDeps{notReady: errors.New("bus disconnected")}, nil)

		Convey("Then /healthz answers 503 with the reason", func() {
			w := get(mux, "/healthz")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(w.Body.String(), ShouldContainSubstring, `"status":"unavailable"`)
			So(w.Body.String(), ShouldContainSubstring, "bus disconnected")
		})

		Convey("Then /ws is not registered without a live feed", func() {
			So(get(mux, "/ws").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestKindErrors(t *testing.T) {
	Convey("Given a wrapped storage failure", t, func() {
		err := api.WrapKind("api.get_shots", api.ErrInternal, repository.ErrStorage)

		Convey("Then both kind and cause are matchable", func() {
			So(errors.Is(err, api.ErrInternal), ShouldBeTrue)
			So(errors.Is(err, repository.ErrStorage), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "api.get_shots: internal error")
		})

		Convey("Then wrapping nil yields nil", func() {
			So(api.WrapKind("op", api.ErrBadRequest, nil), ShouldBeNil)
			So(api.Wrap("op", nil), ShouldBeNil)
		})

		Convey("Then a bare kind carries no cause", func() {
			err := api.NewKind("op", api.ErrBadRequest)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "op: bad request")
		})
	})
}
