package tier

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

const (
	poseServiceName  = "pose.landmarker"
	probeDialTimeout = 5 * time.Second
)

// ProbePose checks once at startup whether a pose inference runtime is
// serving at the endpoint. The result is fixed for the process lifetime;
// an empty endpoint reports unavailable without dialing.
func ProbePose(ctx context.Context, endpoint string, logger *log.Logger) bool {
	if endpoint == "" {
		return false
	}
	if logger == nil {
		logger = log.Default()
	}

	dialCtx, cancel := context.WithTimeout(ctx, probeDialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithBlock(),
	)
	if err != nil {
		logger.Printf("[TierManager] pose runtime unreachable at %s: %v", endpoint, err)
		return false
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(dialCtx, &healthpb.HealthCheckRequest{
		Service: poseServiceName,
	})
	if err != nil {
		logger.Printf("[TierManager] pose health check failed: %v", err)
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}
