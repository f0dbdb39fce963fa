package server

import (
	"sync/atomic"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/cv-parser/internal/worker"
)

// Health tracks whether the worker is accepting jobs and mirrors it onto
// the gRPC health service when one is attached.
type Health struct {
	ready atomic.Bool
	grpc  *health.Server
}

func NewHealth() *Health {
	return &Health{}
}

// AttachGRPC mirrors readiness onto hs. The current state is applied immediately.
func (h *Health) AttachGRPC(hs *health.Server) {
	h.grpc = hs
	h.SetReady(h.ready.Load())
}

// SetReady marks the service as ready (true) or not (false).
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
	if h.grpc == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.grpc.SetServingStatus("", status)
}

func (h *Health) Ready() bool {
	return h.ready.Load()
}

// OnStateChange is a worker.WithOnStateChange hook: ready only while running.
func (h *Health) OnStateChange(s worker.State) {
	h.SetReady(s == worker.StateRunning)
}
