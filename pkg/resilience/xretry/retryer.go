package xretry

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/status"

	"github.com/omeyang/xrpcretry/pkg/observability/xlog"
	"github.com/omeyang/xrpcretry/pkg/observability/xmetrics"
)

const (
	componentName    = "xretry"
	defaultOperation = "retry"
)

// Retryer gRPC 一元调用的同步重试执行器。
//
// Retryer 本身无状态，可在多个 goroutine 间共享；每次调用都会创建独立的
// Throttler，尝试计数和最后一次有意义的失败都只存在于单次调用内。
type Retryer struct {
	newThrottler ThrottlerFactory
	classifier   Classifier
	deadlines    DeadlineArithmetic
	timer        Timer
	logger       xlog.Logger
	observer     xmetrics.Observer
	operation    string
}

// RetryerOption 执行器配置选项
type RetryerOption func(*Retryer)

// WithThrottlerFactory 设置 Throttler 工厂
func WithThrottlerFactory(f ThrottlerFactory) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.newThrottler = f
		}
	}
}

// WithClassifier 设置失败分类器
func WithClassifier(c Classifier) RetryerOption {
	return func(r *Retryer) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithDeadlineArithmetic 设置截止时间计算
func WithDeadlineArithmetic(d DeadlineArithmetic) RetryerOption {
	return func(r *Retryer) {
		if d != nil {
			r.deadlines = d
		}
	}
}

// WithTimer 设置退避等待计时器（主要用于测试）
func WithTimer(t Timer) RetryerOption {
	return func(r *Retryer) {
		if t != nil {
			r.timer = t
		}
	}
}

// WithLogger 设置日志记录器，默认使用 xlog.Default()
func WithLogger(l xlog.Logger) RetryerOption {
	return func(r *Retryer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver 设置观测器，默认不观测
func WithObserver(o xmetrics.Observer) RetryerOption {
	return func(r *Retryer) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithOperation 设置指标与日志中的操作名
func WithOperation(name string) RetryerOption {
	return func(r *Retryer) {
		if name != "" {
			r.operation = name
		}
	}
}

// NewRetryer 创建重试执行器。
// 默认使用 BackoffThrottler、StatusClassifier 与系统时钟。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		newThrottler: defaultThrottlerFactory,
		classifier:   StatusClassifier{},
		deadlines:    NewDeadlineArithmetic(nil),
		timer:        realTimer{},
		observer:     xmetrics.NoopObserver{},
		operation:    defaultOperation,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// WithOptions 返回应用了 opts 的副本，原执行器不受影响
func (r *Retryer) WithOptions(opts ...RetryerOption) *Retryer {
	if r == nil {
		return NewRetryer(opts...)
	}
	cp := *r
	for _, opt := range opts {
		if opt != nil {
			opt(&cp)
		}
	}
	return &cp
}

// Do 执行无返回值的重试调用
func (r *Retryer) Do(ctx context.Context, caps CapabilitiesSupplier, fn func(ctx context.Context) error, opts Options) error {
	if fn == nil {
		return ErrNilFunc
	}
	_, err := Execute(ctx, r, caps, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts).Unwrap()
	return err
}

// Retry 使用新建的执行器阻塞执行 fn，直到成功、遇到终止性错误或预算耗尽。
//
// 返回值：
//   - 成功：fn 的结果
//   - 非 gRPC 状态错误：原样返回
//   - 终止性状态错误：原样返回（codes.Canceled 额外包装 ErrCanceled）
//   - 预算耗尽：最后一次有意义的失败
//   - 退避期间取消：包装了 ErrCanceled 与取消原因的错误
func Retry[R any](ctx context.Context, caps CapabilitiesSupplier, fn func(ctx context.Context) (R, error), opts Options, ropts ...RetryerOption) (R, error) {
	return Execute(ctx, NewRetryer(ropts...), caps, fn, opts).Unwrap()
}

// Execute 执行重试调用并返回带结束方式的结果。
//
// 这是泛型函数，必须作为包级函数使用。
// opts 在第一次尝试之前校验，失败时返回 OutcomePassThrough 且 Attempts 为 0。
func Execute[R any](ctx context.Context, r *Retryer, caps CapabilitiesSupplier, fn func(ctx context.Context) (R, error), opts Options) Outcome[R] {
	if r == nil {
		return failed[R](OutcomePassThrough, ErrNilRetryer, 0)
	}
	if ctx == nil {
		return failed[R](OutcomePassThrough, ErrNilContext, 0)
	}
	if fn == nil {
		return failed[R](OutcomePassThrough, ErrNilFunc, 0)
	}
	if err := opts.Validate(); err != nil {
		return failed[R](OutcomePassThrough, err, 0)
	}
	r = r.withDefaults()

	ctx, span := xmetrics.Start(ctx, r.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: r.operation,
		Kind:      xmetrics.KindClient,
	})
	out := run(ctx, r, caps, fn, &opts)
	span.End(xmetrics.Result{
		Err:         out.Err,
		Attempts:    out.Attempts,
		MetricAttrs: []xmetrics.Attr{xmetrics.String("outcome", out.Kind.String())},
	})
	return out
}

// run 尝试循环：等待 → 调用 → 分类 → 判断预算。
// 等待是唯一的挂起点；同一时刻最多只有一次 fn 调用在执行。
func run[R any](ctx context.Context, r *Retryer, caps CapabilitiesSupplier, fn func(ctx context.Context) (R, error), opts *Options) Outcome[R] {
	log := r.log().With(xlog.Operation(r.operation))
	effective := r.deadlines.Merge(opts.Expiration, opts.Deadline)
	throttler := r.newThrottler(opts)

	var lastMeaningful error
	attempt := 0
	for {
		attempt++

		if d := throttler.NextSleep(); d > 0 {
			if err := r.sleep(ctx, d); err != nil {
				// 等待期间环境截止时间到期等同于预算耗尽
				if errors.Is(err, context.DeadlineExceeded) && lastMeaningful != nil {
					log.Debug(ctx, "out of retries", xlog.Attempt(attempt-1), xlog.Err(lastMeaningful))
					return failed[R](OutcomeExhausted, lastMeaningful, attempt-1)
				}
				log.Debug(ctx, "retry canceled", xlog.Attempt(attempt-1), xlog.Err(err))
				return failed[R](OutcomeCancelled, canceledError(ctx), attempt-1)
			}
		}
		if lastMeaningful != nil {
			log.Debug(ctx, "retrying after failure", xlog.Attempt(attempt), xlog.Err(lastMeaningful))
		}

		v, err := fn(ctx)
		if err == nil {
			throttler.OnSuccess()
			return success(v, attempt)
		}

		st, ok := status.FromError(err)
		if !ok {
			return failed[R](OutcomePassThrough, err, attempt)
		}
		if final := r.classifier.Classify(err, st, opts, caps); final != nil {
			log.Debug(ctx, "final error, not retrying", xlog.Attempt(attempt), xlog.Code(st.Code().String()), xlog.Err(final))
			return failed[R](OutcomeTerminal, final, attempt)
		}
		lastMeaningful = r.classifier.MergeMeaningful(lastMeaningful, err)
		if lastMeaningful == nil {
			// 自定义合并丢弃了失败，耗尽时至少返回本次失败
			lastMeaningful = err
		}
		throttler.OnFailure(st.Code())

		if r.deadlines.Exhausted(opts, attempt, effective, ambientDeadline(ctx)) {
			log.Debug(ctx, "out of retries", xlog.Attempt(attempt), xlog.Err(lastMeaningful))
			return failed[R](OutcomeExhausted, lastMeaningful, attempt)
		}
	}
}

// sleep 阻塞 d 或直到 ctx 结束。
// 两者同时就绪时取消优先。
func (r *Retryer) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.timer.After(d):
		return ctx.Err()
	}
}

// withDefaults 为零值 Retryer（未经 NewRetryer 构造）补齐默认协作者，防止 panic
func (r *Retryer) withDefaults() *Retryer {
	if r.newThrottler != nil && r.classifier != nil && r.deadlines != nil && r.timer != nil {
		return r
	}
	cp := *r
	if cp.newThrottler == nil {
		cp.newThrottler = defaultThrottlerFactory
	}
	if cp.classifier == nil {
		cp.classifier = StatusClassifier{}
	}
	if cp.deadlines == nil {
		cp.deadlines = NewDeadlineArithmetic(nil)
	}
	if cp.timer == nil {
		cp.timer = realTimer{}
	}
	if cp.operation == "" {
		cp.operation = defaultOperation
	}
	return &cp
}

func (r *Retryer) log() xlog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return xlog.Default()
}

// ambientDeadline 每次迭代重新读取，调用链上游可能收紧截止时间
func ambientDeadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}
