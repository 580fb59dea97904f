package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/health"
	"github.com/therealutkarshpriyadarshi/journalscope/internal/logging"
)

// Server exposes metrics and health endpoints while journalscope watches an inbox
type Server struct {
	servers []*http.Server
	logger  *logging.Logger
}

// Config holds server configuration. Metrics and health share one listener
// when their addresses are equal.
type Config struct {
	MetricsAddress  string
	MetricsPath     string
	HealthAddress   string
	LivenessPath    string
	ReadinessPath   string
	MetricsRegistry *prometheus.Registry
	HealthChecker   *health.Checker
	Logger          *logging.Logger
}

// New creates a new server
func New(cfg Config) *Server {
	s := &Server{logger: cfg.Logger.WithComponent("server")}

	muxes := make(map[string]*http.ServeMux)
	mux := func(addr string) *http.ServeMux {
		if m, ok := muxes[addr]; ok {
			return m
		}
		m := http.NewServeMux()
		muxes[addr] = m
		s.servers = append(s.servers, &http.Server{
			Addr:         addr,
			Handler:      m,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
		return m
	}

	if cfg.MetricsAddress != "" && cfg.MetricsRegistry != nil {
		mux(cfg.MetricsAddress).Handle(orDefault(cfg.MetricsPath, "/metrics"), MetricsHandler(cfg.MetricsRegistry))
	}

	if cfg.HealthAddress != "" && cfg.HealthChecker != nil {
		m := mux(cfg.HealthAddress)
		m.HandleFunc(orDefault(cfg.LivenessPath, "/health/live"), cfg.HealthChecker.LivenessHandler())
		m.HandleFunc(orDefault(cfg.ReadinessPath, "/health/ready"), cfg.HealthChecker.ReadinessHandler())
		m.HandleFunc("/health", cfg.HealthChecker.HTTPHandler())
	}

	return s
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Start binds every listener and serves in the background. Bind errors are
// returned immediately.
func (s *Server) Start() error {
	for _, srv := range s.servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
		}

		s.logger.Info().Str("address", ln.Addr().String()).Msg("Starting HTTP server")
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Str("address", srv.Addr).Msg("HTTP server error")
			}
		}(srv, ln)
	}
	return nil
}

// Addrs returns the configured listen addresses
func (s *Server) Addrs() []string {
	addrs := make([]string, 0, len(s.servers))
	for _, srv := range s.servers {
		addrs = append(addrs, srv.Addr)
	}
	return addrs
}

// Stop gracefully shuts down the servers
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	for _, srv := range s.servers {
		s.logger.Info().Str("address", srv.Addr).Msg("Shutting down HTTP server")
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}

// Name identifies the server to the shutdown manager
func (s *Server) Name() string {
	return "http-server"
}
