package xretry

import "strconv"

// OutcomeKind 一次重试调用的结束方式
type OutcomeKind int

const (
	// OutcomeSuccess 操作成功
	OutcomeSuccess OutcomeKind = iota
	// OutcomePassThrough 非 gRPC 状态错误（或调用前的参数/配置错误），原样返回
	OutcomePassThrough
	// OutcomeTerminal 分类器判定为不可重试的状态错误
	OutcomeTerminal
	// OutcomeExhausted 尝试次数或截止时间耗尽，Err 为最后一次有意义的失败
	OutcomeExhausted
	// OutcomeCancelled 退避等待期间被取消
	OutcomeCancelled
)

// String 返回 OutcomeKind 的可读表示，用于日志与指标属性
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomePassThrough:
		return "pass_through"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "OutcomeKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Outcome 重试调用结果。
//
// Kind 为 OutcomeSuccess 时 Value 有效、Err 为 nil；其他情况 Err 非 nil。
// Attempts 为实际调用操作的次数。
type Outcome[R any] struct {
	Kind     OutcomeKind
	Value    R
	Err      error
	Attempts int
}

// Unwrap 转换为 Go 惯用的 (值, 错误) 返回形式
func (o Outcome[R]) Unwrap() (R, error) {
	if o.Kind != OutcomeSuccess {
		var zero R
		return zero, o.Err
	}
	return o.Value, nil
}

// OK 是否成功
func (o Outcome[R]) OK() bool {
	return o.Kind == OutcomeSuccess
}

func success[R any](v R, attempts int) Outcome[R] {
	return Outcome[R]{Kind: OutcomeSuccess, Value: v, Attempts: attempts}
}

func failed[R any](kind OutcomeKind, err error, attempts int) Outcome[R] {
	return Outcome[R]{Kind: kind, Err: err, Attempts: attempts}
}
