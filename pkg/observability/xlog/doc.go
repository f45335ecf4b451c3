// Package xlog 基于 log/slog 的结构化日志库。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、格式、轮转）
//   - 自动从 context 注入 OpenTelemetry trace_id/span_id（EnrichHandler，默认启用）
//   - 动态级别调整
//   - 全局 Logger 便利函数
//
// # 创建 Logger
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString("debug").
//	    SetFormat("json").
//	    SetRotation("/var/log/app.log", xlog.WithMaxSize(50)).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
// Builder 遵循 first-error-wins：第一个配置错误由 Build 返回。
//
// # 日志级别
//
// LevelDebug(-4)、LevelInfo(0)、LevelWarn(4)、LevelError(8)。
// [ParseLevel] 从字符串解析；Level 实现 encoding.TextUnmarshaler，可直接用于配置结构体。
//
// # 便捷属性
//
// [Err]、[Duration]、[Component]、[Operation]、[Method]、[Attempt]、[Code]、[CallID]。
package xlog
