package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/thejerf/suture/v4"

	"pet-diary/internal/adapters/auth/identity"
	"pet-diary/internal/adapters/auth/jwtauth"
	blobmem "pet-diary/internal/adapters/blob/memory"
	blobs3 "pet-diary/internal/adapters/blob/s3"
	badgerstore "pet-diary/internal/adapters/storage/badger"
	mem "pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/adapters/storage/postgres"
	"pet-diary/internal/config"
	"pet-diary/internal/platform/logger"
	"pet-diary/internal/platform/server"
	"pet-diary/internal/ports/auth"
	"pet-diary/internal/ports/blobstore"
	"pet-diary/internal/ports/docstore"
	"pet-diary/internal/realtime"
	"pet-diary/internal/router"
)

// @title Pet Diary API
// @version 1.0
// @description Diario de cuidados de mascotas compartido entre miembros con roles owner, editor y viewer.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Format: logger.ParseFormat(cfg.Logging.Format),
		App:    cfg.Logging.App,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	// in-process: cada escritura del store publica el cambio y el hub recarga las vistas
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	store := realtime.NewChangeFeed(base, bus, log)
	hub := realtime.NewHub(bus, log)
	streams := realtime.NewStreams(hub, realtime.NewBridge(cfg.Server.CORSOrigins, log))

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	handler := router.NewRouter(router.Options{
		AuthVerifier:      verifier,
		Store:             store,
		Blobs:             blobs,
		Streams:           streams,
		Logger:            log,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		MaxUploadBytes:    cfg.Blob.MaxUploadBytes,
		Tracing:           cfg.Server.Tracing,
		AppName:           cfg.Logging.App,
	})

	// WriteTimeout no aplica a los WebSockets: el hijack los saca del server.
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sup := suture.New("pet-diary", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn("supervisor event", e.Map())
		},
	})
	sup.Add(hub)
	sup.Add(server.New(srv, cfg.Server.ShutdownTimeout, log))

	log.Info("starting server", map[string]any{
		"addr":  srv.Addr,
		"store": cfg.Store.Driver,
		"blob":  cfg.Blob.Driver,
		"auth":  cfg.Auth.Mode,
	})

	err = sup.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped", nil)
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (docstore.Store, func(), error) {
	switch cfg.Driver {
	case "badger":
		db, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return badgerstore.NewStore(db), func() { _ = db.Close() }, nil
	case "postgres":
		db, err := postgres.Open(cfg.DSN, cfg.Tracing)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewStore(db), func() { _ = db.Close() }, nil
	default:
		return mem.NewStore(), func() {}, nil
	}
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.Blob.Driver == "s3" {
		return blobs3.New(ctx, blobs3.Options{
			Bucket:          cfg.Blob.Bucket,
			Region:          cfg.Blob.Region,
			Endpoint:        cfg.Blob.Endpoint,
			PublicBaseURL:   cfg.Blob.PublicBaseURL,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
			MaxUploadBytes:  cfg.Blob.MaxUploadBytes,
		})
	}
	// el router sirve /blobs/* cuando el store es el de memoria
	return blobmem.NewStore(fmt.Sprintf("http://localhost:%d/blobs", cfg.Server.Port), cfg.Blob.MaxUploadBytes), nil
}

// newVerifier devuelve nil en modo debug: AuthContext lee los headers X-Debug-*.
func newVerifier(cfg config.AuthConfig) (auth.AuthVerifier, error) {
	switch cfg.Mode {
	case "jwt":
		return jwtauth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), nil
	case "remote":
		client, err := identity.NewClient(identity.Config{
			BaseURL: cfg.RemoteBaseURL,
			APIKey:  cfg.RemoteAPIKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return identity.NewVerifier(client), nil
	default:
		return nil, nil
	}
}
