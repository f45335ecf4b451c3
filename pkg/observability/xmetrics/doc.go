// Package xmetrics 提供最小化的观测接口（metrics + tracing）。
//
// 业务代码只依赖 Observer/Span/Attr，默认实现基于 OpenTelemetry。
//
//	obs, err := xmetrics.NewOTelObserver(xmetrics.WithMeterProvider(mp))
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xretry",
//		Operation: "/pkg.Service/Get",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err, Attempts: attempts})
//
// # 指标
//
//   - xrpc.operation.total：操作次数（component / operation / status）
//   - xrpc.operation.duration：操作耗时，单位秒
//   - xrpc.operation.attempts：每次操作的尝试次数，Result.Attempts > 0 时记录
package xmetrics
