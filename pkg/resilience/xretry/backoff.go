package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// BackoffPolicy 计算第 n 次失败后的等待时间
type BackoffPolicy interface {
	// NextDelay 返回下次尝试前的延迟
	// attempt: 连续失败次数（从 1 开始）
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff 指数退避策略
// delay = min(initialDelay * multiplier^(attempt-1), maxDelay) * (1 + rand(-1,1) * jitter)
//
// 抖动施加在上限截断之后，因此实际延迟可能在 maxDelay 上下浮动 jitter 比例。
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration // 0 表示不限
	multiplier   float64
	jitter       float64
}

// ExponentialBackoffOption 指数退避配置选项
type ExponentialBackoffOption func(*ExponentialBackoff)

// WithInitialDelay 设置初始延迟。
// d <= 0 时静默忽略（保持默认值），与 WithMultiplier 一致。
func WithInitialDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.initialDelay = d
		}
	}
}

// WithMaxDelay 设置最大延迟，0 表示不限
func WithMaxDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d >= 0 {
			b.maxDelay = d
		}
	}
}

// WithMultiplier 设置乘数因子（>= 1.0）
// 小于 1.0 的值会被忽略。
func WithMultiplier(m float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithJitter 设置抖动因子（0-1 之间）
func WithJitter(j float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if j < 0 || math.IsNaN(j) {
			j = 0
		} else if j > 1 {
			j = 1
		}
		b.jitter = j
	}
}

// NewExponentialBackoff 创建指数退避策略
// 默认值与 DefaultOptions 一致：
//   - initialDelay: 100ms
//   - maxDelay: 1m
//   - multiplier: 1.7
//   - jitter: 0.1 (10%)
func NewExponentialBackoff(opts ...ExponentialBackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: DefaultInitialInterval,
		maxDelay:     DefaultMaximumInterval,
		multiplier:   DefaultBackoffCoefficient,
		jitter:       DefaultMaximumJitterCoefficient,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxDelay > 0 && b.maxDelay < b.initialDelay {
		b.maxDelay = b.initialDelay
	}
	return b
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))

	// NaN 安全的上限截断：attempt 极大时 math.Pow 溢出为 +Inf，
	// NaN 的所有比较均为 false，会绕过 maxDelay 限制。
	ceiling := float64(math.MaxInt64)
	if b.maxDelay > 0 {
		ceiling = float64(b.maxDelay)
	}
	if math.IsNaN(delay) || delay >= ceiling {
		delay = ceiling
	}

	if b.jitter > 0 {
		delay *= 1.0 + (randomFloat64()*2-1)*b.jitter
	}

	if delay <= 0 {
		return 0
	}
	// float64(MaxInt64) 向上取整，乘以 (1+jitter) 后再转换会溢出
	if delay >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

var _ BackoffPolicy = (*ExponentialBackoff)(nil)

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// randomFloat64 返回 [0, 1) 的随机数
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 失败时返回 0.5，这意味着无抖动（安全默认值）
		return 0.5
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
