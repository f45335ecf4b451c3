// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，自动注入 trace_id/span_id
//   - xmetrics: 观测接口（指标、追踪），默认实现基于 OpenTelemetry
package observability
