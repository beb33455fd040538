// Package statusapi exposes a small read-only HTTP surface over a running
// node: health, contribution, topology, and Prometheus metrics. It is
// additive instrumentation, separate from the node's gRPC contract.
package statusapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ringnode/core"
	"ringnode/internal/statusapi/config"
	"ringnode/internal/statusapi/controllers"
	"ringnode/internal/statusapi/routes"
)

// Server wraps an http.Server hosting the status API and the metrics
// registry for a single Orchestrator.
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

// NewServer builds a Server for orch, registering its contribution meter's
// collectors against a fresh Prometheus registry.
func NewServer(orch *core.Orchestrator, port string, log *logrus.Entry) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(orch.Meter().PrometheusCollectors(orch.NodeID())...)

	r := mux.NewRouter()
	sc := controllers.NewStatusController(orch)
	routes.Register(r, sc)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{Addr: ":" + port, Handler: r},
		log:        log,
	}
}

// ListenAndServe starts serving in a background goroutine.
func (s *Server) ListenAndServe() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.log != nil {
				s.log.Warnf("statusapi: ListenAndServe exited: %v", err)
			}
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// LoadEnv reads the status API's own .env-driven port configuration,
// returning the resolved port string.
func LoadEnv() (string, error) {
	if err := config.Load(); err != nil {
		return "", err
	}
	return config.AppConfig.Port, nil
}
