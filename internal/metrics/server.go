package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulsecam/internal/logging"
)

// Handler returns an HTTP handler for /metrics backed by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Server serves /metrics until its context is cancelled.
type Server struct {
	listener net.Listener
	srv      *http.Server
	logger   *slog.Logger
}

// Listen binds addr and prepares the /metrics endpoint.
func Listen(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return &Server{
		listener: ln,
		logger:   logging.NewComponentLogger(logger, "metrics"),
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then shuts the listener down.
func (s *Server) Serve(ctx context.Context) {
	errs := make(chan error, 1)
	go func() {
		errs <- s.srv.Serve(s.listener)
	}()
	s.logger.Info("metrics listener started", logging.String("addr", s.Addr()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		<-errs
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WarnWithContext(s.logger, "metrics listener stopped", "metrics_listener_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "metrics endpoint unavailable until restart"),
			)
		}
	}
}
