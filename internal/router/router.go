package router

import (
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "pet-diary/docs"
	blobmem "pet-diary/internal/adapters/blob/memory"
	mem "pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/domain/entries"
	"pet-diary/internal/domain/friends"
	"pet-diary/internal/domain/members"
	"pet-diary/internal/domain/pets"
	"pet-diary/internal/domain/tasks"
	"pet-diary/internal/domain/users"
	"pet-diary/internal/domain/weights"
	"pet-diary/internal/middleware"
	"pet-diary/internal/platform/httpx"
	"pet-diary/internal/platform/logger"
	"pet-diary/internal/platform/metrics"
	"pet-diary/internal/ports/auth"
	"pet-diary/internal/ports/blobstore"
	"pet-diary/internal/ports/docstore"
	"pet-diary/internal/realtime"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev, headers X-Debug-*)

	// Si no vienen, in-memory.
	Store docstore.Store
	Blobs blobstore.Store

	// Streams nil deshabilita los endpoints /stream (501).
	// Para que haya fan-out, Store tiene que ser el ChangeFeed que alimenta al Hub.
	Streams *realtime.Streams

	Logger logger.Logger

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxUploadBytes    int64

	// Tracing envuelve el router con el handler de X-Ray.
	Tracing bool
	AppName string
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	store := opts.Store
	if store == nil {
		store = mem.NewStore()
	}
	blobs := opts.Blobs
	if blobs == nil {
		blobs = blobmem.NewStore("", opts.MaxUploadBytes)
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = httpx.DefaultMaxUploadBytes
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsOrAll(opts.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.HeaderDebugUserID, middleware.HeaderDebugUserEmail},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if opts.RateLimitRequests > 0 {
		window := opts.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(opts.RateLimitRequests, window))
	}
	r.Use(metrics.Middleware)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if opts.Streams.Enabled() {
			channels, listeners := opts.Streams.Hub.Stats()
			body["realtime"] = map[string]int{"channels": channels, "listeners": listeners}
		}
		httpx.WriteJSON(w, http.StatusOK, body)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
	))

	// blobs en memoria: se sirven desde acá para que las URLs funcionen en dev
	if mb, ok := blobs.(*blobmem.Store); ok {
		r.Get("/blobs/*", serveMemoryBlob(mb))
	}

	// Services por módulo
	membersSvc := members.NewService(members.NewRepository(store))
	usersSvc := users.NewService(users.NewRepository(store), blobs, log)
	petsSvc := pets.NewService(pets.NewRepository(store), membersSvc, blobs, log)
	entriesSvc := entries.NewService(entries.NewRepository(store), membersSvc, blobs, log)
	tasksSvc := tasks.NewService(tasks.NewRepository(store), membersSvc)
	friendsSvc := friends.NewService(friends.NewRepository(store), membersSvc, blobs, log)
	weightsSvc := weights.NewService(weights.NewRepository(store), membersSvc)

	// Rutas por módulo
	users.RegisterRoutes(r, usersSvc, maxUpload)
	pets.RegisterRoutes(r, petsSvc, maxUpload)
	members.RegisterRoutes(r, membersSvc, opts.Streams)
	entries.RegisterRoutes(r, entriesSvc, opts.Streams, maxUpload)
	tasks.RegisterRoutes(r, tasksSvc, opts.Streams)
	friends.RegisterRoutes(r, friendsSvc, opts.Streams, maxUpload)
	weights.RegisterRoutes(r, weightsSvc, opts.Streams)

	if opts.Tracing {
		name := opts.AppName
		if name == "" {
			name = "pet-diary"
		}
		return xray.Handler(xray.NewFixedSegmentNamer(name), r)
	}
	return r
}

func originsOrAll(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func serveMemoryBlob(store *blobmem.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, contentType, ok := store.Open(chi.URLParam(r, "*"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		_, _ = io.Copy(w, body)
	}
}
