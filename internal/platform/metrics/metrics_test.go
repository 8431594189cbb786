package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/pets/{petID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.CollectAndCount(HTTPRequestDuration)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pets/p1", nil))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pets/p2", nil))

	// ambos requests caen en la misma serie (route=/pets/{petID})
	if got := testutil.CollectAndCount(HTTPRequestDuration); got != before+1 {
		t.Fatalf("expected one new series, got %d (before %d)", got, before)
	}
}

func TestObserveMembership(t *testing.T) {
	classify := func(error) string { return "last_owner" }

	ObserveMembership("leave", nil, classify)
	ObserveMembership("leave", errors.New("x"), classify)

	if got := testutil.ToFloat64(MembershipOperations.WithLabelValues("leave", "ok")); got < 1 {
		t.Fatalf("expected ok counter >= 1, got %v", got)
	}
	if got := testutil.ToFloat64(MembershipOperations.WithLabelValues("leave", "last_owner")); got < 1 {
		t.Fatalf("expected last_owner counter >= 1, got %v", got)
	}
}
