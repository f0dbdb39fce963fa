package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/cv-parser/internal/metrics"
	"github.com/joseph-ayodele/cv-parser/internal/worker"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHTTPHandler(NewHealth(), nil)

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyFollowsWorkerState(t *testing.T) {
	status := NewHealth()
	h := NewHTTPHandler(status, nil)

	tests := []struct {
		state worker.State
		code  int
	}{
		{worker.StateStarting, http.StatusServiceUnavailable},
		{worker.StateRunning, http.StatusOK},
		{worker.StateDraining, http.StatusServiceUnavailable},
		{worker.StateStopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			status.OnStateChange(tt.state)
			assert.Equal(t, tt.code, get(t, h, "/ready").Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveJob("completed", "", 0)

	rec := get(t, NewHTTPHandler(NewHealth(), reg), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cvparser_jobs_total{kind="",outcome="completed"} 1`)
}

func TestGRPCHealthMirrorsReadiness(t *testing.T) {
	h := NewHealth()
	h.SetReady(true)

	hs := health.NewServer()
	h.AttachGRPC(hs)

	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	h.OnStateChange(worker.StateDraining)
	resp, err = hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestServerServesHealthOnBoundAddress(t *testing.T) {
	srv, err := New("127.0.0.1:0", "", NewHealth(), nil, nil)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.HTTPAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewFailsWhenHTTPAddressIsTaken(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	_, err = New(taken.Addr().String(), "", NewHealth(), nil, nil)
	assert.Error(t, err)
}

func TestNewReleasesHTTPListenerWhenGRPCBindFails(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := free.Addr().String()
	require.NoError(t, free.Close())

	_, err = New(addr, taken.Addr().String(), NewHealth(), nil, nil)
	require.Error(t, err)

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err, "http listener should have been released")
	_ = ln.Close()
}
