package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder(t *testing.T) {
	Convey("Given a fresh recorder", t, func() {
		r := New()

		Convey("When poll cycles finish", func() {
			r.PollCycle(SourcePrivate, nil)
			r.PollCycle(SourcePrivate, nil)
			r.PollCycle(SourceGlobal, errors.New("boom"))

			Convey("Then they are counted by scope and result", func() {
				So(testutil.ToFloat64(r.pollCycles.WithLabelValues(SourcePrivate, ResultOK)), ShouldEqual, 2)
				So(testutil.ToFloat64(r.pollCycles.WithLabelValues(SourceGlobal, ResultError)), ShouldEqual, 1)
			})
		})

		Convey("When solves, heroes and members are recorded", func() {
			r.NewSolves(SourcePrivate, 3)
			r.HeroesFound(2)
			r.TrackedMembers(12)
			r.PollSucceeded(time.Unix(1670217000, 0))

			Convey("Then the collectors hold the values", func() {
				So(testutil.ToFloat64(r.newSolves.WithLabelValues(SourcePrivate)), ShouldEqual, 3)
				So(testutil.ToFloat64(r.heroesFound), ShouldEqual, 2)
				So(testutil.ToFloat64(r.trackedMembers), ShouldEqual, 12)
				So(testutil.ToFloat64(r.lastSuccess), ShouldEqual, 1670217000)
			})
		})

		Convey("When the handler is scraped", func() {
			r.ObserveFetch(SourceGlobal, 250*time.Millisecond)
			rec := httptest.NewRecorder()
			r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Convey("Then the exposition contains the namespaced metrics", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "aoc_fetch_duration_seconds_count{source=\"global\"} 1")
				So(rec.Body.String(), ShouldContainSubstring, "go_goroutines")
			})
		})
	})
}
