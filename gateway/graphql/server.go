package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/c360/ciboard/errors"
	"github.com/c360/ciboard/health"
	"github.com/c360/ciboard/pkg/tlsutil"
)

// Server manages the HTTP server: the GraphQL endpoint, playground, health
// and metrics.
type Server struct {
	config         Config
	handler        http.Handler
	monitor        *health.Monitor
	metricsHandler http.Handler
	logger         *slog.Logger
	httpServer     *http.Server
	mux            *http.ServeMux
	listener       net.Listener

	// Lifecycle
	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once // Ensures stopChan is closed exactly once
}

// NewServer creates the HTTP server. monitor and metricsHandler are optional.
func NewServer(config Config, handler http.Handler, monitor *health.Monitor, metricsHandler http.Handler, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}

	if handler == nil {
		return nil, errors.WrapFatal(fmt.Errorf("handler is nil"), "Server", "NewServer",
			"handler is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:         config,
		handler:        handler,
		monitor:        monitor,
		metricsHandler: metricsHandler,
		logger:         logger.With("component", "server"),
		mux:            http.NewServeMux(),
		stopChan:       make(chan struct{}),
	}, nil
}

// Setup configures the HTTP server and routes
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mux.Handle(s.config.Path, s.handler)
	s.mux.HandleFunc("/health", s.handleHealth)

	if s.metricsHandler != nil {
		s.mux.Handle("/metrics", s.metricsHandler)
	}

	if s.config.EnablePlayground {
		s.mux.Handle("/{$}", playground.Handler("CI Dashboard", s.config.Path))
		s.logger.Info("GraphQL Playground enabled",
			"url", fmt.Sprintf("http://%s/", s.config.BindAddress))
	}

	var handler http.Handler = s.mux
	if s.config.EnableCORS {
		handler = corsMiddleware(s.config.CORSOrigins, handler)
	}
	handler = requestMiddleware(s.logger, handler)

	s.httpServer = &http.Server{
		Addr:              s.config.BindAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.Timeout(),
		WriteTimeout:      s.config.Timeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	if s.config.TLS.Enabled {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(s.config.TLS)
		if err != nil {
			return errors.WrapInvalid(err, "Server", "Setup", "load TLS configuration")
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	s.logger.Info("Server configured",
		"address", s.config.BindAddress,
		"path", s.config.Path,
		"tls", s.config.TLS.Enabled,
		"timeout", s.config.Timeout())

	return nil
}

// Start binds the listener and serves until ctx is cancelled or Stop is
// called. The ready channel is closed once the listener is bound.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start", "server already running")
	}
	if s.httpServer == nil {
		s.mu.Unlock()
		return errors.WrapFatal(fmt.Errorf("setup not called"), "Server", "Start", "server not configured")
	}
	ln, err := net.Listen("tcp", s.config.BindAddress)
	if err != nil {
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", "bind listener")
	}
	s.listener = ln
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	if s.monitor != nil {
		go s.monitor.Run(ctx, s.config.HealthInterval())
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("Server starting", "address", ln.Addr().String())

		if ready != nil {
			close(ready)
		}

		var err error
		if server.TLSConfig != nil {
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			case <-s.stopChan:
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Server context cancelled, shutting down")
		return s.Stop(30 * time.Second)

	case <-s.stopChan:
		s.logger.Info("Server stop requested")
		return nil

	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if err == nil {
			return nil
		}
		return errors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Server stopping")

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server gracefully", "error", err)
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown failed")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the bound listener address, or "" before Start
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleHealth reports the last probed backend status. Only an unhealthy
// aggregate, meaning search is down, answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}

	status := health.NewHealthy("ciboard", "No backends monitored")
	if s.monitor != nil {
		status = s.monitor.AggregateHealth("ciboard")
	}

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
