package honeypot

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"honeypot-lab/pkg/logger"
)

// ServiceName is the health check name reported for the engagement pipeline
const ServiceName = "honeypot.v1.EngagementService"

// DefaultCheckInterval is how often dependencies are probed
const DefaultCheckInterval = 10 * time.Second

// Pinger is a dependency whose reachability gates the serving status
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker keeps a gRPC health server in sync with its dependencies
type HealthChecker struct {
	server   *health.Server
	deps     map[string]Pinger
	interval time.Duration
	logger   *logger.Logger
}

// NewHealthChecker creates a checker for deps. Nil entries are skipped.
func NewHealthChecker(deps map[string]Pinger, interval time.Duration, log *logger.Logger) *HealthChecker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	active := make(map[string]Pinger, len(deps))
	for name, dep := range deps {
		if dep != nil {
			active[name] = dep
		}
	}

	hc := &HealthChecker{
		server:   health.NewServer(),
		deps:     active,
		interval: interval,
		logger:   log.WithComponent("grpc-health"),
	}
	hc.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	return hc
}

// Register registers the health service and reflection with grpcServer
func (hc *HealthChecker) Register(grpcServer *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcServer, hc.server)
	reflection.Register(grpcServer)
}

// Run probes dependencies until ctx is done, then reports NOT_SERVING
func (hc *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		hc.Check(ctx)

		select {
		case <-ctx.Done():
			hc.server.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

// Check probes every dependency once and updates the serving status
func (hc *HealthChecker) Check(ctx context.Context) bool {
	healthy := true
	for name, dep := range hc.deps {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := dep.Ping(pingCtx)
		cancel()
		if err != nil {
			healthy = false
			hc.logger.Warn().Err(err).Str("dependency", name).Msg("health probe failed")
		}
	}

	if healthy {
		hc.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		hc.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

func (hc *HealthChecker) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	hc.server.SetServingStatus("", status)
	hc.server.SetServingStatus(ServiceName, status)
}
