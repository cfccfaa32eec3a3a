// internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/freshair-modbus/internal/device"
	"github.com/tamzrod/freshair-modbus/internal/status"
)

const (
	readTimeout             = 10 * time.Second
	writeTimeout            = 30 * time.Second
	idleTimeout             = 60 * time.Second
	gracefulShutdownTimeout = 10 * time.Second

	maxBodyBytes = 4 << 10
)

// Device is what the API serves. *device.Device satisfies it.
type Device interface {
	ID() string
	Get(ctx context.Context, p device.Property) (any, bool)
	Set(ctx context.Context, p device.Property, v any) error
	State(ctx context.Context) device.State
	Refresh(ctx context.Context, force bool) error
}

// HealthSource supplies the current status snapshot. *status.Tracker satisfies it.
type HealthSource interface {
	Snapshot() status.Snapshot
}

// Deps are the collaborators of the server. Gatherer may be nil to disable /metrics.
type Deps struct {
	Device   Device
	Health   HealthSource
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server is the HTTP API.
type Server struct {
	listen string
	dev    Device
	health HealthSource
	gather prometheus.Gatherer
	log    zerolog.Logger

	server *http.Server
	ln     net.Listener
}

func New(listen string, deps Deps) (*Server, error) {
	if deps.Device == nil {
		return nil, errors.New("api: device required")
	}
	if deps.Health == nil {
		return nil, errors.New("api: health source required")
	}
	return &Server{
		listen: listen,
		dev:    deps.Device,
		health: deps.Health,
		gather: deps.Gatherer,
		log:    deps.Logger.With().Str("component", "api").Logger(),
	}, nil
}

// Handler returns the routed handler; used by Start and by tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background.
// Bind errors are returned; serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.listen, err)
	}
	s.ln = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("server error")
		}
	}()

	s.log.Info().Str("address", ln.Addr().String()).Msg("listening")
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close waits up to gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.log.Info().Msg("shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}
