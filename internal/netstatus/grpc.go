package netstatus

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// GRPCHealthProvider checks a gRPC health endpoint. Reaching the server means
// Connected; a SERVING answer means InternetReachable.
type GRPCHealthProvider struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// NewGRPCHealthProvider creates a lazy client for addr; no connection is
// made until the first check.
func NewGRPCHealthProvider(addr string, opts ...grpc.DialOption) (*GRPCHealthProvider, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("health client for %s: %w", addr, err)
	}
	return &GRPCHealthProvider{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

func (p *GRPCHealthProvider) FetchStatus(ctx context.Context) (Status, error) {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			return Status{}, nil
		default:
			return Status{Connected: true}, nil
		}
	}
	return Status{
		Connected:         true,
		InternetReachable: resp.GetStatus() == healthpb.HealthCheckResponse_SERVING,
	}, nil
}

func (p *GRPCHealthProvider) Close() error {
	return p.conn.Close()
}
