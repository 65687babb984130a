package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"github.com/dmitrijs2005/bizkeeper/internal/netstatus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

type fakeDB struct {
	mu  sync.Mutex
	err error
}

func (f *fakeDB) PingContext(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeDB) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func startBufServer(t *testing.T, db Pinger) (*HealthServer, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewHealthServer("bufnet", nopLogger{}, db, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return s, conn
}

func TestHealth_FollowsDatabase(t *testing.T) {
	db := &fakeDB{}
	s, conn := startBufServer(t, db)
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	db.set(errors.New("connection refused"))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.refresh(ctx))

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "other"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealth_ClientProviderSeesMode(t *testing.T) {
	db := &fakeDB{}
	lis := bufconn.Listen(1 << 20)
	srv := NewHealthServer("bufnet", nopLogger{}, db, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, lis) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	p, err := netstatus.NewGRPCHealthProvider("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer p.Close()

	st, err := p.FetchStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, netstatus.ModeOnline, st.Mode())

	db.set(errors.New("down"))
	srv.refresh(context.Background())

	st, err = p.FetchStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, netstatus.Status{Connected: true}, st)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewHealthServer("127.0.0.1:0", nopLogger{}, &fakeDB{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewHealthServer("127.0.0.1:99999", nopLogger{}, &fakeDB{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	s := NewHealthServer("", nopLogger{}, &fakeDB{}, time.Second)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := s.loggingInterceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	boom := status.Error(codes.Internal, "boom")
	_, err = s.loggingInterceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, boom
	})
	require.Equal(t, boom, err)
}
