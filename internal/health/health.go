package health

import (
	"context"
	"net/http"
	"time"

	"github.com/AzeemWaqarr/wattwise/internal/httpx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the server-wide ("") status.
const ServiceName = "wattwise.DatasetStore"

type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Register attaches a health service to gs. Everything starts NOT_SERVING
// until the first successful ping.
func Register(gs *grpc.Server) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return hs
}

// Watch pings the database every interval and mirrors the result into hs
// until ctx is done.
func Watch(ctx context.Context, hs *health.Server, pinger Pinger, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	last := check(ctx, hs, pinger, interval, healthpb.HealthCheckResponse_UNKNOWN)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			last = check(ctx, hs, pinger, interval, last)
		}
	}
}

func check(ctx context.Context, hs *health.Server, pinger Pinger, timeout time.Duration, last healthpb.HealthCheckResponse_ServingStatus) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	latency, err := pinger.Ping(pingCtx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if status != last {
		if err != nil {
			zap.S().Warnw("database unreachable", "error", err)
		} else {
			zap.S().Infow("database reachable", "latency", latency)
		}
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
	return status
}

// Handler serves /healthz from the same state the gRPC health service reports.
func Handler(hs *health.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := hs.Check(r.Context(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "UNKNOWN"})
			return
		}
		code := http.StatusOK
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, code, map[string]string{"status": resp.GetStatus().String()})
	})
}
