package xretry

import (
	"context"
	"errors"
	"fmt"
)

// 重试执行器相关错误。
var (
	// ErrInvalidOptions 重试选项自相矛盾（如负的间隔、抖动系数越界）。
	// 在任何一次尝试之前返回。
	ErrInvalidOptions = errors.New("xretry: invalid retry options")

	// ErrCanceled 调用方在退避等待期间取消了重试，
	// 或服务端以 codes.Canceled 拒绝了请求。
	// 与预算耗尽区分：耗尽返回最后一次有意义的失败本身。
	ErrCanceled = errors.New("xretry: canceled")

	// ErrNilContext 传入的 context 为 nil
	ErrNilContext = errors.New("xretry: context cannot be nil")

	// ErrNilFunc 传入的操作函数为 nil
	ErrNilFunc = errors.New("xretry: function cannot be nil")

	// ErrNilRetryer 传入的 Retryer 为 nil
	ErrNilRetryer = errors.New("xretry: retryer cannot be nil")
)

// invalidOptions 包装一个具体的选项校验失败原因。
func invalidOptions(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}

// canceledError 构造取消错误，同时保留 ctx 的取消原因，
// 使 errors.Is(err, context.Canceled) 依然成立。
func canceledError(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// IsCanceled 判断错误是否表示重试被取消。
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsInvalidOptions 判断错误是否为选项配置错误。
func IsInvalidOptions(err error) bool {
	return errors.Is(err, ErrInvalidOptions)
}
