package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"flowcore/internal/topology"
	"flowcore/internal/tracing"
	pkgtracing "flowcore/pkg/tracing"
)

// healthySink is a Sink whose Healthcheck always succeeds and whose Run
// just drains input until cancelled.
type healthySink struct {
	healthy bool
}

func (s *healthySink) Run(ctx context.Context, in topology.Input) error {
	for {
		if _, err := in.Receive(ctx); err != nil {
			return err
		}
	}
}

func (s *healthySink) Healthcheck(ctx context.Context) error {
	if s.healthy {
		return nil
	}
	return context.DeadlineExceeded
}

type idleSource struct{}

func (idleSource) Run(ctx context.Context, out topology.Output) error {
	<-ctx.Done()
	return ctx.Err()
}

func buildTestController(t *testing.T, healthy bool) (*topology.Controller, context.CancelFunc) {
	t.Helper()
	nodes := []topology.Node{
		{
			Key: topology.ComponentKey{ID: "in"}, Kind: topology.KindSource, Produces: topology.DataLogs,
			Build: func() (topology.Instance, error) { return idleSource{}, nil },
		},
		{
			Key: topology.ComponentKey{ID: "out"}, Kind: topology.KindSink, Inputs: []string{"in"}, Accepts: topology.DataLogs,
			Build: func() (topology.Instance, error) { return &healthySink{healthy: healthy}, nil },
		},
	}
	g, err := topology.Build(nodes)
	require.NoError(t, err)
	c, err := topology.NewController(g, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	return c, cancel
}

func TestHealthzReportsOKWhenAllSinksHealthy(t *testing.T) {
	c, cancel := buildTestController(t, true)
	defer cancel()

	s := New(Config{}, c, nil, nil)
	rec := httptest.NewRecorder()
	s.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestHealthzReportsDegradedWhenASinkFails(t *testing.T) {
	c, cancel := buildTestController(t, false)
	defer cancel()

	s := New(Config{}, c, nil, nil)
	rec := httptest.NewRecorder()
	s.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])
}

func TestTopologyHandlerListsComponents(t *testing.T) {
	c, cancel := buildTestController(t, true)
	defer cancel()

	s := New(Config{}, c, nil, nil)
	rec := httptest.NewRecorder()
	s.topologyHandler(rec, httptest.NewRequest(http.MethodGet, "/topology", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Components []struct {
			ID    string `json:"id"`
			Kind  string `json:"kind"`
			State string `json:"state"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Components, 2)
}

func newHybridTracer(t *testing.T) *tracing.Tracer {
	t.Helper()
	cfg := pkgtracing.DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Mode = pkgtracing.ModeHybrid
	cfg.OnDemandEnabled = true
	tr, err := tracing.New(cfg, logrus.New())
	require.NoError(t, err)
	return tr
}

func TestOnDemandEndpointsReportNotFoundWithoutATracer(t *testing.T) {
	c, cancel := buildTestController(t, true)
	defer cancel()

	s := New(Config{}, c, nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tracing/on-demand", nil)
	s.onDemandListHandler(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOnDemandEnableAndListRoundTrips(t *testing.T) {
	c, cancel := buildTestController(t, true)
	defer cancel()

	s := New(Config{}, c, newHybridTracer(t), nil)

	enableReq := httptest.NewRequest(http.MethodPost, "/tracing/on-demand/src-1?rate=0.5&duration=1m", nil)
	enableReq = mux.SetURLVars(enableReq, map[string]string{"sourceID": "src-1"})
	enableRec := httptest.NewRecorder()
	s.onDemandEnableHandler(enableRec, enableReq)
	require.Equal(t, http.StatusNoContent, enableRec.Code)

	listRec := httptest.NewRecorder()
	s.onDemandListHandler(listRec, httptest.NewRequest(http.MethodGet, "/tracing/on-demand", nil))
	require.Equal(t, http.StatusOK, listRec.Code)

	var body struct {
		Rules []map[string]interface{} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &body))
	require.Len(t, body.Rules, 1)
	require.Equal(t, "src-1", body.Rules[0]["source_id"])
}

func TestOnDemandDisableRemovesTheRule(t *testing.T) {
	c, cancel := buildTestController(t, true)
	defer cancel()

	s := New(Config{}, c, newHybridTracer(t), nil)

	enableReq := httptest.NewRequest(http.MethodPost, "/tracing/on-demand/src-1", nil)
	enableReq = mux.SetURLVars(enableReq, map[string]string{"sourceID": "src-1"})
	s.onDemandEnableHandler(httptest.NewRecorder(), enableReq)

	disableReq := httptest.NewRequest(http.MethodDelete, "/tracing/on-demand/src-1", nil)
	disableReq = mux.SetURLVars(disableReq, map[string]string{"sourceID": "src-1"})
	disableRec := httptest.NewRecorder()
	s.onDemandDisableHandler(disableRec, disableReq)
	require.Equal(t, http.StatusNoContent, disableRec.Code)

	listRec := httptest.NewRecorder()
	s.onDemandListHandler(listRec, httptest.NewRequest(http.MethodGet, "/tracing/on-demand", nil))
	var body struct {
		Rules []map[string]interface{} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &body))
	require.Len(t, body.Rules, 0)
}

func TestOnDemandEnableRejectsInvalidRate(t *testing.T) {
	c, cancel := buildTestController(t, true)
	defer cancel()

	s := New(Config{}, c, newHybridTracer(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/tracing/on-demand/src-1?rate=not-a-number", nil)
	req = mux.SetURLVars(req, map[string]string{"sourceID": "src-1"})
	rec := httptest.NewRecorder()
	s.onDemandEnableHandler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
