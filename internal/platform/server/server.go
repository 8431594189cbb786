// Package server corre el http.Server como servicio de suture.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"pet-diary/internal/platform/logger"
)

// HTTPServer es la parte de *http.Server que usamos.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type Service struct {
	srv             HTTPServer
	shutdownTimeout time.Duration
	log             logger.Logger
}

func New(srv HTTPServer, shutdownTimeout time.Duration, log logger.Logger) *Service {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{srv: srv, shutdownTimeout: shutdownTimeout, log: log}
}

// Serve bloquea hasta que ctx termina o el server falla. Si el puerto no se
// puede abrir no tiene sentido reintentar: se corta todo el árbol.
func (s *Service) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			s.log.Error("http server failed", map[string]any{"error": err})
			return fmt.Errorf("%w: %v", suture.ErrTerminateSupervisorTree, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Service) String() string { return "http-server" }
