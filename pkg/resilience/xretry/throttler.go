package xretry

import (
	"sync"
	"time"

	"google.golang.org/grpc/codes"
)

//go:generate mockgen -source=throttler.go -destination=throttler_mock_test.go -package=xretry

// Throttler 有状态的退避计时器。
//
// 执行器每次尝试前调用 NextSleep，成功后调用 OnSuccess 重置状态，
// 可重试失败后调用 OnFailure 推进状态。失败码决定使用哪条退避曲线。
type Throttler interface {
	// NextSleep 返回下次尝试前需要等待的时间，<= 0 表示立即执行
	NextSleep() time.Duration

	// OnSuccess 重置退避状态
	OnSuccess()

	// OnFailure 记录一次失败
	OnFailure(code codes.Code)
}

// ThrottlerFactory 为单次重试调用创建独立的 Throttler。
// Throttler 状态不得在并发调用之间共享。
type ThrottlerFactory func(opts *Options) Throttler

// BackoffThrottler 区分普通失败与拥塞失败（ResourceExhausted）的退避计时器。
//
//   - 连续失败次数为 0 时不等待
//   - 最近一次失败为 ResourceExhausted 时使用拥塞曲线（CongestionInitialInterval 起步）
//   - 否则使用普通曲线（InitialInterval 起步）
//
// 两条曲线共享 MaximumInterval、BackoffCoefficient 与 MaximumJitterCoefficient。
type BackoffThrottler struct {
	ordinary   BackoffPolicy
	congestion BackoffPolicy

	mu           sync.Mutex
	failureCount int
	lastCode     codes.Code
}

// NewBackoffThrottler 按 opts 创建退避计时器。
// opts 应已通过 Validate。
func NewBackoffThrottler(opts *Options) *BackoffThrottler {
	curve := func(initial time.Duration) BackoffPolicy {
		return NewExponentialBackoff(
			WithInitialDelay(initial),
			WithMaxDelay(opts.MaximumInterval),
			WithMultiplier(opts.BackoffCoefficient),
			WithJitter(opts.MaximumJitterCoefficient),
		)
	}
	return &BackoffThrottler{
		ordinary:   curve(opts.InitialInterval),
		congestion: curve(opts.congestionInitial()),
		lastCode:   codes.OK,
	}
}

// NextSleep 实现 Throttler
func (t *BackoffThrottler) NextSleep() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failureCount == 0 {
		return 0
	}
	if t.lastCode == codes.ResourceExhausted {
		return t.congestion.NextDelay(t.failureCount)
	}
	return t.ordinary.NextDelay(t.failureCount)
}

// OnSuccess 实现 Throttler
func (t *BackoffThrottler) OnSuccess() {
	t.mu.Lock()
	t.failureCount = 0
	t.lastCode = codes.OK
	t.mu.Unlock()
}

// OnFailure 实现 Throttler
func (t *BackoffThrottler) OnFailure(code codes.Code) {
	t.mu.Lock()
	t.failureCount++
	t.lastCode = code
	t.mu.Unlock()
}

// FailureCount 返回当前连续失败次数
func (t *BackoffThrottler) FailureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failureCount
}

func defaultThrottlerFactory(opts *Options) Throttler {
	return NewBackoffThrottler(opts)
}

var _ Throttler = (*BackoffThrottler)(nil)
