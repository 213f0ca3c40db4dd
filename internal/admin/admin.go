// Package admin exposes the operator-facing HTTP surface named in
// SPEC_FULL.md §6.6: /healthz aggregates each running sink's Healthcheck,
// /metrics serves the Prometheus registry, and /topology reports the live
// component graph and per-component lifecycle state.
//
// Grounded on internal/app/handlers.go's registerHandlers/healthHandler
// pattern (gorilla/mux router, JSON-encoded responses) and
// internal/app/initialization.go's initHTTPServer, generalized from the
// teacher's fixed dispatcher/monitor fields to topology.Controller's
// component-agnostic Snapshot/Healthcheck surface.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"flowcore/internal/metrics"
	"flowcore/internal/topology"
	"flowcore/internal/tracing"
)

// Config configures the admin HTTP server.
type Config struct {
	Addr string // host:port to listen on; empty disables the server
}

// Server serves /healthz, /metrics, and /topology for one running
// topology.Controller.
type Server struct {
	cfg        Config
	controller *topology.Controller
	tracer     *tracing.Tracer
	logger     *logrus.Logger
	httpServer *http.Server
}

// New builds a Server. tracer may be nil, in which case the /tracing
// on-demand endpoints report 404 instead of operating on a disabled
// tracer. Call Start to begin serving.
func New(cfg Config, controller *topology.Controller, tracer *tracing.Tracer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{cfg: cfg, controller: controller, tracer: tracer, logger: logger}

	metrics.RegisterAll()

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/topology", s.topologyHandler).Methods("GET")
	router.HandleFunc("/tracing/on-demand", s.onDemandListHandler).Methods("GET")
	router.HandleFunc("/tracing/on-demand/{sourceID}", s.onDemandEnableHandler).Methods("POST")
	router.HandleFunc("/tracing/on-demand/{sourceID}", s.onDemandDisableHandler).Methods("DELETE")

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}
	return s
}

// Start begins serving in the background. It returns immediately; serve
// errors other than a clean shutdown are logged, matching
// metrics.MetricsServer's fire-and-forget Start.
func (s *Server) Start() {
	if s.cfg.Addr == "" {
		s.logger.Info("admin: server disabled (no address configured)")
		return
	}
	s.logger.WithField("addr", s.cfg.Addr).Info("admin: starting HTTP server")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("admin: server error")
		}
	}()
}

// Shutdown gracefully stops the server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthzHandler aggregates every sink's Healthcheck result. The response
// is 200 when every check passes (or none exist to fail) and 503
// otherwise, with per-component detail in the body either way.
func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	results := s.controller.Healthcheck(ctx)
	components := make(map[string]string, len(results))
	healthy := true
	for id, err := range results {
		if err != nil {
			components[id] = err.Error()
			healthy = false
		} else {
			components[id] = "ok"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().Unix(),
		"components": components,
	})
}

// topologyComponent is one component's JSON projection of
// topology.ComponentStatus.
type topologyComponent struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind"`
	Inputs []string `json:"inputs,omitempty"`
	State  string   `json:"state"`
	Error  string   `json:"error,omitempty"`
}

// topologyHandler reports the live component graph: every component's
// kind, declared inputs, and current lifecycle state.
func (s *Server) topologyHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := s.controller.Snapshot()
	components := make([]topologyComponent, 0, len(snapshot))
	for _, c := range snapshot {
		tc := topologyComponent{
			ID:     c.ID,
			Kind:   c.Kind.String(),
			Inputs: c.Inputs,
			State:  c.State,
		}
		if c.LastErr != nil {
			tc.Error = c.LastErr.Error()
		}
		components = append(components, tc)
	}

	level, factor := s.controller.BackpressureStatus()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"components": components,
		"backpressure": map[string]interface{}{
			"level":  level,
			"factor": factor,
		},
	})
}

// onDemandListHandler reports every active on-demand tracing rule.
func (s *Server) onDemandListHandler(w http.ResponseWriter, r *http.Request) {
	if s.tracer == nil {
		http.Error(w, "tracing not enabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rules": s.tracer.OnDemandRules(),
	})
}

// onDemandEnableHandler turns on hybrid-mode tracing for one source for a
// bounded duration: POST /tracing/on-demand/{sourceID}?rate=0.5&duration=5m.
func (s *Server) onDemandEnableHandler(w http.ResponseWriter, r *http.Request) {
	if s.tracer == nil {
		http.Error(w, "tracing not enabled", http.StatusNotFound)
		return
	}
	sourceID := mux.Vars(r)["sourceID"]

	rate := 1.0
	if v := r.URL.Query().Get("rate"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid rate: "+err.Error(), http.StatusBadRequest)
			return
		}
		rate = parsed
	}

	duration := 5 * time.Minute
	if v := r.URL.Query().Get("duration"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			http.Error(w, "invalid duration: "+err.Error(), http.StatusBadRequest)
			return
		}
		duration = parsed
	}

	if err := s.tracer.EnableOnDemand(sourceID, rate, duration); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"rate":      rate,
		"duration":  duration,
	}).Info("admin: on-demand tracing enabled")
	w.WriteHeader(http.StatusNoContent)
}

// onDemandDisableHandler cancels a source's on-demand rule early:
// DELETE /tracing/on-demand/{sourceID}.
func (s *Server) onDemandDisableHandler(w http.ResponseWriter, r *http.Request) {
	if s.tracer == nil {
		http.Error(w, "tracing not enabled", http.StatusNotFound)
		return
	}
	sourceID := mux.Vars(r)["sourceID"]
	s.tracer.DisableOnDemand(sourceID)
	s.logger.WithField("source_id", sourceID).Info("admin: on-demand tracing disabled")
	w.WriteHeader(http.StatusNoContent)
}
