package xretry

import (
	"math"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"
)

// 默认重试参数。
const (
	DefaultInitialInterval           = 100 * time.Millisecond
	DefaultCongestionInitialInterval = time.Second
	DefaultMaximumInterval           = time.Minute
	DefaultBackoffCoefficient        = 1.7
	DefaultMaximumJitterCoefficient  = 0.1
	DefaultExpiration                = time.Minute
)

// DoNotRetryItem 声明一类不应重试的失败。
//
// Code 必须匹配；Detail 非 nil 时，状态的 details 中还必须包含同类型的消息。
type DoNotRetryItem struct {
	Code   codes.Code
	Detail proto.Message
}

// Options 一次重试调用的不可变配置。
//
// 零值字段语义：
//   - MaximumInterval 为 0 表示不限制退避上限
//   - MaximumAttempts 为 0 表示不限制尝试次数
//   - Expiration 为 0 表示不限制重试总时长
//   - Deadline 为零值表示调用方未给出绝对截止时间
//
// Options 按值传递，执行器不会修改调用方持有的副本。
type Options struct {
	InitialInterval           time.Duration
	CongestionInitialInterval time.Duration
	MaximumInterval           time.Duration
	BackoffCoefficient        float64
	MaximumJitterCoefficient  float64
	MaximumAttempts           int
	Expiration                time.Duration
	DoNotRetry                []DoNotRetryItem

	// Deadline 调用方给出的绝对截止时间，与 Expiration 取较早者。
	Deadline time.Time
}

// DefaultOptions 返回默认重试选项：
//   - InitialInterval: 100ms
//   - CongestionInitialInterval: 1s
//   - MaximumInterval: 1m
//   - BackoffCoefficient: 1.7
//   - MaximumJitterCoefficient: 0.1
//   - MaximumAttempts: 0（不限）
//   - Expiration: 1m
func DefaultOptions() Options {
	return Options{
		InitialInterval:           DefaultInitialInterval,
		CongestionInitialInterval: DefaultCongestionInitialInterval,
		MaximumInterval:           DefaultMaximumInterval,
		BackoffCoefficient:        DefaultBackoffCoefficient,
		MaximumJitterCoefficient:  DefaultMaximumJitterCoefficient,
		Expiration:                DefaultExpiration,
	}
}

// Option 重试选项的函数式配置
type Option func(*Options)

// NewOptions 在默认选项上依次应用 opts。
// 不做校验，校验发生在 Validate（执行器每次调用前都会执行）。
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithInitialInterval 设置普通失败的首次退避间隔
func WithInitialInterval(d time.Duration) Option {
	return func(o *Options) { o.InitialInterval = d }
}

// WithCongestionInitialInterval 设置 ResourceExhausted 失败的首次退避间隔
func WithCongestionInitialInterval(d time.Duration) Option {
	return func(o *Options) { o.CongestionInitialInterval = d }
}

// WithMaximumInterval 设置退避间隔上限，0 表示不限
func WithMaximumInterval(d time.Duration) Option {
	return func(o *Options) { o.MaximumInterval = d }
}

// WithBackoffCoefficient 设置退避乘数（>= 1）
func WithBackoffCoefficient(c float64) Option {
	return func(o *Options) { o.BackoffCoefficient = c }
}

// WithMaximumJitterCoefficient 设置最大抖动系数，取值 [0, 1)
func WithMaximumJitterCoefficient(j float64) Option {
	return func(o *Options) { o.MaximumJitterCoefficient = j }
}

// WithMaximumAttempts 设置最大尝试次数（包含首次），0 表示不限
func WithMaximumAttempts(n int) Option {
	return func(o *Options) { o.MaximumAttempts = n }
}

// WithExpiration 设置重试总时长（从调用开始计算），0 表示不限
func WithExpiration(d time.Duration) Option {
	return func(o *Options) { o.Expiration = d }
}

// WithDeadline 设置调用方的绝对截止时间
func WithDeadline(t time.Time) Option {
	return func(o *Options) { o.Deadline = t }
}

// WithDoNotRetry 追加不重试的状态码（可选限定 detail 类型）
func WithDoNotRetry(code codes.Code, detail proto.Message) Option {
	return func(o *Options) {
		o.DoNotRetry = append(slices.Clip(o.DoNotRetry), DoNotRetryItem{Code: code, Detail: detail})
	}
}

// Validate 校验选项的一致性。
//
// 纯函数：无副作用，对同一合法选项重复调用始终返回 nil。
func (o Options) Validate() error {
	switch {
	case o.InitialInterval <= 0:
		return invalidOptions("initial interval must be positive, got %v", o.InitialInterval)
	case o.CongestionInitialInterval < 0:
		return invalidOptions("congestion initial interval must not be negative, got %v", o.CongestionInitialInterval)
	case o.CongestionInitialInterval > 0 && o.CongestionInitialInterval < o.InitialInterval:
		return invalidOptions("congestion initial interval %v is less than initial interval %v",
			o.CongestionInitialInterval, o.InitialInterval)
	case o.MaximumInterval < 0:
		return invalidOptions("maximum interval must not be negative, got %v", o.MaximumInterval)
	case o.MaximumInterval > 0 && o.MaximumInterval < o.InitialInterval:
		return invalidOptions("maximum interval %v is less than initial interval %v",
			o.MaximumInterval, o.InitialInterval)
	case math.IsNaN(o.BackoffCoefficient) || o.BackoffCoefficient < 1:
		return invalidOptions("backoff coefficient must be >= 1, got %v", o.BackoffCoefficient)
	case math.IsNaN(o.MaximumJitterCoefficient) || o.MaximumJitterCoefficient < 0 || o.MaximumJitterCoefficient >= 1:
		return invalidOptions("maximum jitter coefficient must be in [0, 1), got %v", o.MaximumJitterCoefficient)
	case o.MaximumAttempts < 0:
		return invalidOptions("maximum attempts must not be negative, got %d", o.MaximumAttempts)
	case o.Expiration < 0:
		return invalidOptions("expiration must not be negative, got %v", o.Expiration)
	}
	return nil
}

// congestionInitial 返回拥塞曲线的首次间隔，未配置时退化为普通曲线。
func (o Options) congestionInitial() time.Duration {
	if o.CongestionInitialInterval > 0 {
		return o.CongestionInitialInterval
	}
	return o.InitialInterval
}
