package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "petdiary_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// MembershipOperations cuenta operaciones de membresía.
	// Labels:
	//   - op: invite, accept, decline, update_role, remove, leave, transfer
	//   - outcome: ok o el nombre del error (forbidden, last_owner, ...)
	MembershipOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petdiary_membership_operations_total",
			Help: "Total number of membership operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	RealtimeChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "petdiary_realtime_channels",
			Help: "Current number of open realtime channels",
		},
	)

	RealtimeListeners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "petdiary_realtime_listeners",
			Help: "Current number of realtime listeners across channels",
		},
	)

	RealtimeSnapshotsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petdiary_realtime_snapshots_coalesced_total",
			Help: "Snapshots replaced before a slow listener consumed them",
		},
	)

	BlobUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petdiary_blob_uploads_total",
			Help: "Total number of blob uploads by outcome",
		},
		[]string{"outcome"},
	)
)

// Middleware mide cada request usando el patrón de ruta de chi (no el path crudo).
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

// ObserveMembership registra el resultado de una operación de membresía.
func ObserveMembership(op string, err error, classify func(error) string) {
	outcome := "ok"
	if err != nil {
		outcome = classify(err)
	}
	MembershipOperations.WithLabelValues(op, outcome).Inc()
}

func ObserveBlobUpload(err error) {
	if err != nil {
		BlobUploads.WithLabelValues("error").Inc()
		return
	}
	BlobUploads.WithLabelValues("ok").Inc()
}
