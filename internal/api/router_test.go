package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopost/engine/internal/api"
	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
	"github.com/gopost/engine/internal/metrics"
	redisclient "github.com/gopost/engine/internal/redis"
)

type fakeStats struct {
	stats domain.JobStats
	err   error
}

func (f *fakeStats) GetStats(context.Context) (*domain.JobStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.stats, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(context.Context) error { return f.err }

type fakeCache struct {
	global, tenant int
}

func (f *fakeCache) Sizes() (int, int) { return f.global, f.tenant }

type fakeEngine struct {
	running   bool
	cancelErr error
	cancelled []string
}

func (f *fakeEngine) Cancel(_ context.Context, jobID, _ string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeEngine) IsRunning() bool { return f.running }

func newTestRouter(t *testing.T, stats *fakeStats, db *fakePinger, engine *fakeEngine) http.Handler {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	r := api.NewRouter(stats, db, client, &fakeCache{global: 2, tenant: 5}, engine, reg, false, logger.NewNopLogger())
	return r.SetupRoutes()
}

func doRequest(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheckHealthy(t *testing.T) {
	handler := newTestRouter(t, &fakeStats{}, &fakePinger{}, &fakeEngine{running: true})

	rec := doRequest(handler, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	scheduler, ok := body["scheduler"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, scheduler["running"])
}

func TestHealthCheckDegradedOnDBFailure(t *testing.T) {
	handler := newTestRouter(t, &fakeStats{}, &fakePinger{err: errors.New("connection refused")}, &fakeEngine{})

	rec := doRequest(handler, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestGetStats(t *testing.T) {
	stats := &fakeStats{stats: domain.JobStats{Scheduled: 3, Published: 10, Failed: 1}}
	handler := newTestRouter(t, stats, &fakePinger{}, &fakeEngine{running: true})

	rec := doRequest(handler, http.MethodGet, "/api/v1/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs            domain.JobStats `json:"jobs"`
		CredentialCache struct {
			GlobalEntries int `json:"global_entries"`
			TenantEntries int `json:"tenant_entries"`
		} `json:"credential_cache"`
		SchedulerRunning bool `json:"scheduler_running"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Jobs.Scheduled)
	assert.Equal(t, int64(10), body.Jobs.Published)
	assert.Equal(t, 2, body.CredentialCache.GlobalEntries)
	assert.Equal(t, 5, body.CredentialCache.TenantEntries)
	assert.True(t, body.SchedulerRunning)
}

func TestGetStatsStoreFailure(t *testing.T) {
	handler := newTestRouter(t, &fakeStats{err: errors.New("boom")}, &fakePinger{}, &fakeEngine{})

	rec := doRequest(handler, http.MethodGet, "/api/v1/stats")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCancelSchedule(t *testing.T) {
	engine := &fakeEngine{}
	handler := newTestRouter(t, &fakeStats{}, &fakePinger{}, engine)

	rec := doRequest(handler, http.MethodDelete, "/api/v1/jobs/job-1/schedule?tenant_id=tenant-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job-1"}, engine.cancelled)
}

func TestCancelScheduleConflict(t *testing.T) {
	engine := &fakeEngine{cancelErr: domain.ErrClaimConflict}
	handler := newTestRouter(t, &fakeStats{}, &fakePinger{}, engine)

	rec := doRequest(handler, http.MethodDelete, "/api/v1/jobs/job-1/schedule")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestRouter(t, &fakeStats{}, &fakePinger{}, &fakeEngine{})

	rec := doRequest(handler, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine_scheduler_ticks_total")
}