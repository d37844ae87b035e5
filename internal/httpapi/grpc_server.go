package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter publishes store readiness over the standard gRPC health protocol.
type HealthReporter struct {
	hs    *health.Server
	probe ReadyProbe
	log   *zap.Logger
}

// NewGRPCServer returns a gRPC server exposing grpc.health.v1 for both the overall server
// ("") and serviceName. Statuses start as NOT_SERVING until the first Refresh.
func NewGRPCServer(probe ReadyProbe, log *zap.Logger) (*grpc.Server, *HealthReporter) {
	if log == nil {
		log = zap.NewNop()
	}
	hr := &HealthReporter{hs: health.NewServer(), probe: probe, log: log}
	hr.set(healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hr.hs)
	return srv, hr
}

// Refresh pings the probe once and updates the published status.
func (h *HealthReporter) Refresh(ctx context.Context) bool {
	if err := h.probe.Ping(ctx); err != nil {
		h.log.Warn("readiness probe failed", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run refreshes on every tick until ctx is done, then marks the server as shutting down.
func (h *HealthReporter) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}

func (h *HealthReporter) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(serviceName, st)
}
