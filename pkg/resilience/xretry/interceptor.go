package xretry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/omeyang/xrpcretry/pkg/observability/xlog"
)

// InterceptorOptions gRPC 客户端拦截器选项
type InterceptorOptions struct {
	Retry             Options
	Retryer           *Retryer
	Capabilities      CapabilitiesSupplier
	PerAttemptTimeout time.Duration
	MethodFilter      func(method string) bool
}

// InterceptorOption gRPC 拦截器选项函数
type InterceptorOption func(*InterceptorOptions)

func defaultInterceptorOptions() *InterceptorOptions {
	return &InterceptorOptions{
		Retry:        DefaultOptions(),
		Capabilities: StaticCapabilities{},
	}
}

// WithInterceptorRetryOptions 设置重试选项
func WithInterceptorRetryOptions(o Options) InterceptorOption {
	return func(opts *InterceptorOptions) {
		opts.Retry = o
	}
}

// WithRetryer 设置共享的执行器（日志、指标等协作者从中继承）
func WithRetryer(r *Retryer) InterceptorOption {
	return func(opts *InterceptorOptions) {
		opts.Retryer = r
	}
}

// WithCapabilities 设置服务端能力提供者
func WithCapabilities(c CapabilitiesSupplier) InterceptorOption {
	return func(opts *InterceptorOptions) {
		if c != nil {
			opts.Capabilities = c
		}
	}
}

// WithPerAttemptTimeout 设置单次尝试的超时，0 表示不限。
// 执行器只在两次尝试之间检查截止时间，无法打断进行中的调用，
// 单次尝试的超时需要由调用本身保证。
func WithPerAttemptTimeout(d time.Duration) InterceptorOption {
	return func(opts *InterceptorOptions) {
		if d >= 0 {
			opts.PerAttemptTimeout = d
		}
	}
}

// WithMethodFilter 设置方法过滤器，返回 false 的方法不经过重试
func WithMethodFilter(fn func(method string) bool) InterceptorOption {
	return func(opts *InterceptorOptions) {
		opts.MethodFilter = fn
	}
}

// UnaryClientInterceptor 创建带重试的 gRPC 一元客户端拦截器。
//
// 只用于幂等调用：拦截器不区分请求是否已被服务端执行。
//
// 示例:
//
//	conn, _ := grpc.NewClient(target,
//	    grpc.WithTransportCredentials(insecure.NewCredentials()),
//	    grpc.WithUnaryInterceptor(xretry.UnaryClientInterceptor(
//	        xretry.WithInterceptorRetryOptions(xretry.NewOptions(xretry.WithMaximumAttempts(5))),
//	        xretry.WithPerAttemptTimeout(2*time.Second),
//	    )),
//	)
func UnaryClientInterceptor(opts ...InterceptorOption) grpc.UnaryClientInterceptor {
	options := defaultInterceptorOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	base := options.Retryer
	if base == nil {
		base = NewRetryer()
	}

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		if options.MethodFilter != nil && !options.MethodFilter(method) {
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}

		r := base.WithOptions(
			WithOperation(method),
			WithLogger(base.log().With(xlog.Method(method), xlog.CallID(uuid.NewString()))),
		)
		return r.Do(ctx, options.Capabilities, func(ctx context.Context) error {
			if options.PerAttemptTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, options.PerAttemptTimeout)
				defer cancel()
			}
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}, options.Retry)
	}
}
