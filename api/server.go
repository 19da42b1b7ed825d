package api

import (
	"context"
	"net/http"
	"time"

	"github.com/planmint/planmint-backend/pkg/logger"
)

const shutdownGrace = 15 * time.Second

// Server wraps http.Server with signal-driven graceful shutdown so in-flight
// webhook deliveries and checkout verifications finish before exit.
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
}

func NewServer(addr string, handler http.Handler, logg *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logg,
	}
}

// Run serves until ctx is canceled, then drains connections within the
// shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(context.Background(), "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
