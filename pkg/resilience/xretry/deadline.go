package xretry

import "time"

// DeadlineArithmetic 负责截止时间合并与重试预算判断。
// 零值 time.Time 表示"无截止时间"。
type DeadlineArithmetic interface {
	// Merge 将相对时长 expiration（从现在起算）与绝对截止时间 deadline 合并，取较早者
	Merge(expiration time.Duration, deadline time.Time) time.Time

	// Exhausted 判断重试预算是否耗尽
	Exhausted(opts *Options, attempt int, effective, ambient time.Time) bool
}

// MergeDeadlines 返回 now+expiration 与 deadline 中较早者。
// expiration <= 0 或 deadline 为零值时对应项不参与比较；两者都缺省时返回零值。
func MergeDeadlines(now time.Time, expiration time.Duration, deadline time.Time) time.Time {
	var merged time.Time
	if expiration > 0 {
		merged = now.Add(expiration)
	}
	if !deadline.IsZero() && (merged.IsZero() || deadline.Before(merged)) {
		merged = deadline
	}
	return merged
}

// RanOutOfRetries 判断是否已无重试预算：
//   - MaximumAttempts > 0 且 attempt >= MaximumAttempts
//   - effective 已到期
//   - ambient 已到期
func RanOutOfRetries(opts *Options, attempt int, effective, ambient, now time.Time) bool {
	if opts != nil && opts.MaximumAttempts > 0 && attempt >= opts.MaximumAttempts {
		return true
	}
	return expired(effective, now) || expired(ambient, now)
}

func expired(deadline, now time.Time) bool {
	return !deadline.IsZero() && !now.Before(deadline)
}

// systemDeadlines 基于可注入时钟的默认实现
type systemDeadlines struct {
	now func() time.Time
}

// NewDeadlineArithmetic 创建默认实现，now 为 nil 时使用 time.Now
func NewDeadlineArithmetic(now func() time.Time) DeadlineArithmetic {
	if now == nil {
		now = time.Now
	}
	return systemDeadlines{now: now}
}

func (d systemDeadlines) Merge(expiration time.Duration, deadline time.Time) time.Time {
	return MergeDeadlines(d.now(), expiration, deadline)
}

func (d systemDeadlines) Exhausted(opts *Options, attempt int, effective, ambient time.Time) bool {
	return RanOutOfRetries(opts, attempt, effective, ambient, d.now())
}
