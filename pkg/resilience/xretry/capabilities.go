package xretry

import (
	"context"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/status"
)

// Capabilities 服务端声明的能力标志，分类器据此调整判定规则。
type Capabilities struct {
	// InternalErrorDifferentiation 服务端能区分可重试与不可重试的 Internal 错误。
	// 为 true 时，codes.Internal 视为终止性错误。
	InternalErrorDifferentiation bool
}

// CapabilitiesSupplier 提供服务端能力。
// 分类器仅在遇到需要能力判定的状态码时才调用，实现可以惰性获取。
type CapabilitiesSupplier interface {
	Capabilities() Capabilities
}

// CapabilitiesFunc 函数适配器
type CapabilitiesFunc func() Capabilities

// Capabilities 实现 CapabilitiesSupplier
func (f CapabilitiesFunc) Capabilities() Capabilities {
	if f == nil {
		return Capabilities{}
	}
	return f()
}

// StaticCapabilities 固定能力
type StaticCapabilities Capabilities

// Capabilities 实现 CapabilitiesSupplier
func (s StaticCapabilities) Capabilities() Capabilities {
	return Capabilities(s)
}

const (
	// defaultFetchTimeout 惰性获取能力的默认总超时（包含重试）
	defaultFetchTimeout = 5 * time.Second
	// defaultFetchAttempts 获取能力的默认尝试次数
	defaultFetchAttempts = 3
	// defaultFetchDelay 获取重试的初始间隔，按指数增长
	defaultFetchDelay = 100 * time.Millisecond
)

// LazyCapabilities 首次使用时从服务端获取能力并缓存。
//
// 单次获取由 retry-go 驱动：可重试的失败按指数间隔重试，终止性状态错误
// （如 Unimplemented）立即放弃，整个过程受 WithFetchTimeout 约束。
// 并发的首次获取通过 singleflight 合并为一次请求；获取失败时返回零值能力
// （最保守的判定），并在下次调用时重新获取。
type LazyCapabilities struct {
	fetch    func(ctx context.Context) (Capabilities, error)
	timeout  time.Duration
	attempts uint
	delay    time.Duration
	timer    Timer
	group    singleflight.Group
	cached   atomic.Pointer[Capabilities]
	onError  func(error)
}

// LazyCapabilitiesOption LazyCapabilities 配置选项
type LazyCapabilitiesOption func(*LazyCapabilities)

// WithFetchTimeout 设置单次获取的超时时间
func WithFetchTimeout(d time.Duration) LazyCapabilitiesOption {
	return func(l *LazyCapabilities) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithFetchAttempts 设置获取能力的尝试次数（包含首次），0 保持默认
func WithFetchAttempts(n uint) LazyCapabilitiesOption {
	return func(l *LazyCapabilities) {
		if n > 0 {
			l.attempts = n
		}
	}
}

// WithFetchDelay 设置获取重试的初始间隔
func WithFetchDelay(d time.Duration) LazyCapabilitiesOption {
	return func(l *LazyCapabilities) {
		if d >= 0 {
			l.delay = d
		}
	}
}

// WithFetchTimer 设置获取重试使用的计时器（主要用于测试）
func WithFetchTimer(t Timer) LazyCapabilitiesOption {
	return func(l *LazyCapabilities) {
		if t != nil {
			l.timer = t
		}
	}
}

// WithFetchErrorHandler 设置获取失败回调（如记录日志）
func WithFetchErrorHandler(fn func(error)) LazyCapabilitiesOption {
	return func(l *LazyCapabilities) {
		l.onError = fn
	}
}

// NewLazyCapabilities 创建惰性能力提供者
func NewLazyCapabilities(fetch func(ctx context.Context) (Capabilities, error), opts ...LazyCapabilitiesOption) *LazyCapabilities {
	l := &LazyCapabilities{
		fetch:    fetch,
		timeout:  defaultFetchTimeout,
		attempts: defaultFetchAttempts,
		delay:    defaultFetchDelay,
		timer:    realTimer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Capabilities 实现 CapabilitiesSupplier
func (l *LazyCapabilities) Capabilities() Capabilities {
	if c := l.cached.Load(); c != nil {
		return *c
	}
	if l.fetch == nil {
		return Capabilities{}
	}

	v, err, _ := l.group.Do("capabilities", func() (any, error) {
		if c := l.cached.Load(); c != nil {
			return *c, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		c, err := retry.NewWithData[Capabilities](
			retry.Context(ctx),
			retry.Attempts(l.attempts),
			retry.Delay(l.delay),
			retry.DelayType(retry.BackOffDelay),
			retry.RetryIf(fetchRetryable),
			retry.WithTimer(l.timer),
			retry.LastErrorOnly(true),
		).Do(func() (Capabilities, error) {
			return l.fetch(ctx)
		})
		if err != nil {
			return Capabilities{}, err
		}
		l.cached.Store(&c)
		return c, nil
	})
	if err != nil {
		if l.onError != nil {
			l.onError(err)
		}
		return Capabilities{}
	}
	c, ok := v.(Capabilities)
	if !ok {
		return Capabilities{}
	}
	return c
}

// fetchRetryable 获取失败是否值得重试。
// 非状态错误一律重试；状态错误沿用 StatusClassifier 的终止性判定，
// 不带能力信息，因此 Internal 视为可重试。
func fetchRetryable(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return true
	}
	return StatusClassifier{}.Classify(err, st, nil, nil) == nil
}

// Reset 丢弃缓存，下次调用重新获取
func (l *LazyCapabilities) Reset() {
	l.cached.Store(nil)
}

var (
	_ CapabilitiesSupplier = CapabilitiesFunc(nil)
	_ CapabilitiesSupplier = StaticCapabilities{}
	_ CapabilitiesSupplier = (*LazyCapabilities)(nil)
)
