package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/hedgemesh/internal/capital"
	"github.com/sawpanic/hedgemesh/internal/config"
	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/risk"
	"github.com/sawpanic/hedgemesh/internal/scheduler"
	"github.com/sawpanic/hedgemesh/internal/supervisor"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(j scheduler.RunningJob, finish func(scheduler.JobResult)) {}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	reg := venue.New()
	reg.Register(venue.Config{ID: "alpha", Equity: 10000, TradeEnabled: true})

	riskEval := risk.New(risk.DefaultConfig())
	coord := capital.New(capital.DefaultConfig(), reg)
	sched := scheduler.New(scheduler.DefaultConfig(), riskEval, coord, noopDispatcher{})
	sup := supervisor.New(supervisor.DefaultConfig())

	cfg := DefaultServerConfig()
	cfg.Port = 0 // let the OS pick a free port, avoiding collisions between test runs
	srv, err := NewServer(cfg, Deps{Scheduler: sched, RiskEval: riskEval, Supervisor: sup})
	require.NoError(t, err)
	return srv, srv.server.Addr
}

// newTestServerWithStore is newTestServer plus a live config.Store, for
// handlers (override, reload) that need one wired in.
func newTestServerWithStore(t *testing.T) (*Server, *config.Store) {
	t.Helper()
	reg := venue.New()
	reg.Register(venue.Config{ID: "alpha", Equity: 10000, TradeEnabled: true})

	riskEval := risk.New(risk.DefaultConfig())
	coord := capital.New(capital.DefaultConfig(), reg)
	sched := scheduler.New(scheduler.DefaultConfig(), riskEval, coord, noopDispatcher{})
	sup := supervisor.New(supervisor.DefaultConfig())
	store := config.NewStore(&config.Root{})

	cfg := DefaultServerConfig()
	cfg.Port = 0
	srv, err := NewServer(cfg, Deps{Scheduler: sched, RiskEval: riskEval, Supervisor: sup, CfgStore: store})
	require.NoError(t, err)
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleState_ReportsQueueDepths(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.PendingCount)
	assert.Equal(t, "balanced", resp.RiskMode)
}

func TestHandleKill_GlobalEngagesBothSwitches(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.supervisor.RegisterTrading("alpha", true)
	rec := doJSON(t, srv, http.MethodPost, "/control/kill", killRequest{})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.metrics.KillSwitchOn))

	j, err := job.New(job.StrategyWash, "BTC-USD", []job.Leg{
		{Venue: "alpha", Side: venue.SideBuy, Quantity: 1},
	}, 100, 10, "test", time.Now(), nil)
	require.NoError(t, err)
	verdict := srv.riskEval.Evaluate(j, risk.Context{})
	assert.Equal(t, risk.DecisionReject, verdict.Decision)
	assert.Equal(t, "global kill switch engaged", verdict.Reason)
	assert.False(t, srv.supervisor.Allow(context.Background(), "alpha", supervisor.RoleTrading).Allowed)
}

func TestHandleMode_RejectsUnknownMode(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/control/mode", modeRequest{Mode: "not-a-mode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMode_AcceptsKnownMode(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/control/mode", modeRequest{Mode: "aggressive"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, risk.ModeAggressive, srv.riskEval.Mode())
}

func TestHandleOverride_WithoutStoreIsUnavailable(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/control/override", overrideRequest{Enabled: true})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleOverride_PersistsToStore(t *testing.T) {
	srv, store := newTestServerWithStore(t)
	assert.False(t, store.ManualOverrideOn())

	rec := doJSON(t, srv, http.MethodPost, "/control/override", overrideRequest{Enabled: true})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.ManualOverrideOn())

	rec = doJSON(t, srv, http.MethodPost, "/control/override", overrideRequest{Enabled: false})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, store.ManualOverrideOn())
}

func TestHandleReload_ServiceUnavailableWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/control/reload", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNotFound_ReturnsJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
