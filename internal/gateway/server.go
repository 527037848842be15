package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"sockbench/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Server runs the gateway until its context is cancelled.
type Server struct {
	Addr    string
	Handler *Handler
	Logger  *slog.Logger
}

// Run listens on s.Addr and shuts down gracefully when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.Or(s.Logger)
	srv := &http.Server{
		Handler:           s.Handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownStart := time.Now()
	log.Info("shutting down gateway")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error("gateway shutdown failed", "error", err)
		return err
	}
	log.Info("gateway shutdown complete", "shutdown_duration", time.Since(shutdownStart).String())
	return nil
}
