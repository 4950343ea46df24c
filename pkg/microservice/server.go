// Package microservice exposes the cache families over HTTP for inspection and
// operational control: health, snapshots, forced loads, clears and receipt
// downloads.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrAlreadyStarted is returned by Start on a server that is already serving.
var ErrAlreadyStarted = errors.New("server already started")

// Service is the lifecycle the command drives.
type Service interface {
	Start() error
	Shutdown(ctx context.Context) error
	Mux() *http.ServeMux
	GetHTTPPort() string
}

// BaseServer owns the listener and the liveness and readiness routes.
// Readiness is only reported between a successful Start and Shutdown.
type BaseServer struct {
	Logger   zerolog.Logger
	HTTPPort string

	mux    *http.ServeMux
	server *http.Server
	ready  atomic.Bool

	mu       sync.Mutex
	listener net.Listener
}

// NewBaseServer creates a stopped server for httpPort (":0" picks a free port).
func NewBaseServer(logger zerolog.Logger, httpPort string) *BaseServer {
	s := &BaseServer{
		Logger:   logger,
		HTTPPort: httpPort,
		mux:      http.NewServeMux(),
	}
	s.server = &http.Server{
		Addr:              httpPort,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mux.HandleFunc("GET /healthz", HealthzHandler)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	return s
}

// Start binds the port and serves in the background.
func (s *BaseServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyStarted
	}

	listener, err := net.Listen("tcp", s.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.HTTPPort, err)
	}
	s.listener = listener
	s.ready.Store(true)
	s.Logger.Info().Str("address", listener.Addr().String()).Msg("Inspection server listening.")

	go func() {
		err := s.server.Serve(listener)
		s.ready.Store(false)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("Inspection server stopped unexpectedly.")
		}
	}()
	return nil
}

// Shutdown stops reporting ready, then drains in-flight requests until ctx ends.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	if err := s.server.Shutdown(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("Inspection server did not drain cleanly.")
		return err
	}
	s.Logger.Info().Msg("Inspection server stopped.")
	return nil
}

// GetHTTPPort returns the bound port, or the configured one before Start.
func (s *BaseServer) GetHTTPPort() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.HTTPPort
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf(":%d", addr.Port)
	}
	return s.HTTPPort
}

// Mux returns the router that extra routes are registered on.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

func (s *BaseServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

// HealthzHandler reports liveness.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
