package xretry

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/omeyang/xrpcretry/pkg/observability/xlog"
)

// flakyHealth 前 failures 次返回 code，前 slow 次先阻塞 delay
type flakyHealth struct {
	grpc_health_v1.UnimplementedHealthServer

	code     codes.Code
	failures atomic.Int32
	slow     atomic.Int32
	delay    time.Duration
	calls    atomic.Int32
}

func (s *flakyHealth) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	s.calls.Add(1)
	if s.slow.Add(-1) >= 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
	if s.failures.Add(-1) >= 0 {
		return nil, status.Error(s.code, "flaky")
	}
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func newHealthClient(t *testing.T, srv grpc_health_v1.HealthServer, opts ...InterceptorOption) grpc_health_v1.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s, srv)
	go func() { _ = s.Serve(lis) }()

	base := []InterceptorOption{WithRetryer(NewRetryer(WithLogger(xlog.Discard())))}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(UnaryClientInterceptor(append(base, opts...)...)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		s.Stop()
	})
	return grpc_health_v1.NewHealthClient(conn)
}

func interceptorOptions(opts ...Option) InterceptorOption {
	return WithInterceptorRetryOptions(NewOptions(append([]Option{
		WithInitialInterval(time.Millisecond),
		WithCongestionInitialInterval(time.Millisecond),
		WithMaximumInterval(5 * time.Millisecond),
		WithExpiration(10 * time.Second),
	}, opts...)...))
}

func TestUnaryClientInterceptor_RetriesUntilSuccess(t *testing.T) {
	srv := &flakyHealth{code: codes.Unavailable}
	srv.failures.Store(2)
	client := newHealthClient(t, srv, interceptorOptions())

	resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.EqualValues(t, 3, srv.calls.Load())
}

func TestUnaryClientInterceptor_TerminalNotRetried(t *testing.T) {
	srv := &flakyHealth{code: codes.InvalidArgument}
	srv.failures.Store(5)
	client := newHealthClient(t, srv, interceptorOptions())

	_, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.EqualValues(t, 1, srv.calls.Load())
}

func TestUnaryClientInterceptor_Exhausted(t *testing.T) {
	srv := &flakyHealth{code: codes.Unavailable}
	srv.failures.Store(10)
	client := newHealthClient(t, srv, interceptorOptions(WithMaximumAttempts(3)))

	_, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.EqualValues(t, 3, srv.calls.Load())
}

func TestUnaryClientInterceptor_MethodFilter(t *testing.T) {
	srv := &flakyHealth{code: codes.Unavailable}
	srv.failures.Store(1)
	var seen atomic.Value
	client := newHealthClient(t, srv, interceptorOptions(), WithMethodFilter(func(method string) bool {
		seen.Store(method)
		return false
	}))

	_, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.EqualValues(t, 1, srv.calls.Load())
	assert.Equal(t, "/grpc.health.v1.Health/Check", seen.Load())
}

func TestUnaryClientInterceptor_PerAttemptTimeout(t *testing.T) {
	srv := &flakyHealth{delay: time.Second}
	srv.slow.Store(1)
	client := newHealthClient(t, srv, interceptorOptions(), WithPerAttemptTimeout(50*time.Millisecond))

	start := time.Now()
	resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.EqualValues(t, 2, srv.calls.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestUnaryClientInterceptor_Capabilities(t *testing.T) {
	srv := &flakyHealth{code: codes.Internal}
	srv.failures.Store(3)
	client := newHealthClient(t, srv, interceptorOptions(),
		WithCapabilities(StaticCapabilities{InternalErrorDifferentiation: true}),
		WithCapabilities(nil))

	_, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.EqualValues(t, 1, srv.calls.Load())
}
