package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 Key
const (
	KeyError     = "error"
	KeyDuration  = "duration"
	KeyComponent = "component"
	KeyOperation = "operation"
	KeyMethod    = "method"
	KeyAttempt   = "attempt"
	KeyCode      = "code"
	KeyCallID    = "call_id"
)

// Err 创建错误属性，err 为 nil 时返回空属性（会被 slog 忽略）
//
//	if err != nil {
//	    logger.Error(ctx, "operation failed", xlog.Err(err))
//	}
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建人类可读的耗时属性（如 "1.5s"）
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 创建操作名属性
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Method 创建 RPC 方法属性
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Attempt 创建尝试次数属性（从 1 开始）
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Code 创建 gRPC 状态码属性
func Code(code string) slog.Attr {
	return slog.String(KeyCode, code)
}

// CallID 创建调用 ID 属性，用于串联同一次重试调用的多条日志
func CallID(id string) slog.Attr {
	return slog.String(KeyCallID, id)
}
