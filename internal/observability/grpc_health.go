package observability

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes readiness over the standard gRPC health protocol
// so orchestrators that only speak gRPC health checks can watch the service.
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]HealthCheckFunc
	interval time.Duration
}

// NewGRPCHealthServer creates a health server that re-evaluates checks every interval
func NewGRPCHealthServer(checks map[string]HealthCheckFunc, interval time.Duration) *GRPCHealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &GRPCHealthServer{
		server:   grpc.NewServer(),
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// Refresh runs the checks once and publishes the result.
// The empty service name reports overall readiness; each check is also
// published under its own name.
func (s *GRPCHealthServer) Refresh(ctx context.Context) bool {
	deps, allHealthy := CheckAll(ctx, s.checks)
	for name, dep := range deps {
		s.health.SetServingStatus(name, servingStatus(dep.Status == "healthy"))
	}
	s.health.SetServingStatus("", servingStatus(allHealthy))
	s.health.SetServingStatus(ServiceName, servingStatus(allHealthy))
	return allHealthy
}

// Serve refreshes status on an interval and serves on lis until ctx is done
func (s *GRPCHealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			s.Refresh(checkCtx)
			cancel()

			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.server.GracefulStop()
				return
			case <-ticker.C:
			}
		}
	}()

	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return s.server.Serve(lis)
}

// Stop stops the server immediately
func (s *GRPCHealthServer) Stop() {
	s.health.Shutdown()
	s.server.Stop()
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
