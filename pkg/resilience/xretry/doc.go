// Package xretry 提供 gRPC 一元调用的同步重试执行器。
//
// # 设计理念
//
// 执行器只编排尝试循环，各项决策委托给可替换的小接口：
//   - Throttler：计算下次等待时间，区分普通曲线与拥塞曲线（ResourceExhausted）
//   - Classifier：将状态失败分为终止性/可重试，并维护最后一次有意义的失败
//   - DeadlineArithmetic：合并重试时长与绝对截止时间，判断预算是否耗尽
//   - CapabilitiesSupplier：服务端能力标志，供分类器使用
//
// # 尝试循环
//
//	STARTING → SLEEPING → INVOKING → {SUCCEEDED | CLASSIFYING}
//	         → {RETRYING | TERMINAL_ERROR | CANCELLED | EXHAUSTED}
//
// 每次迭代：尝试计数加一 → 按 Throttler 等待（唯一挂起点，可被 ctx 取消）→
// 调用一次操作 → 成功直接返回；非 gRPC 状态错误原样返回；终止性状态错误原样返回；
// 可重试失败记录后判断预算（尝试次数、重试截止时间、ctx 截止时间）。
//
// 预算耗尽时返回最后一次有意义的失败本身，而不是合成的"超时"错误。
// 退避期间取消返回包装了 ErrCanceled 的错误，与耗尽区分。
//
// # 使用方式
//
// 方式一：包级函数
//
//	resp, err := xretry.Retry(ctx, xretry.StaticCapabilities{},
//	    func(ctx context.Context) (*pb.Resp, error) {
//	        return client.Get(ctx, req)
//	    },
//	    xretry.NewOptions(xretry.WithMaximumAttempts(5)),
//	)
//
// 方式二：需要区分结束方式时使用 Execute
//
//	out := xretry.Execute(ctx, retryer, caps, fn, opts)
//	switch out.Kind {
//	case xretry.OutcomeExhausted:
//	    // out.Err 为最后一次有意义的失败
//	}
//
// 方式三：gRPC 客户端拦截器，见 [UnaryClientInterceptor]。
//
// # 默认分类规则
//
//   - Canceled：终止（包装 ErrCanceled）
//   - InvalidArgument、NotFound、AlreadyExists、FailedPrecondition、
//     PermissionDenied、Unauthenticated、Unimplemented：终止
//   - Internal：服务端声明 InternalErrorDifferentiation 时终止
//   - DeadlineExceeded：重试，且不覆盖之前记录的失败
//   - Options.DoNotRetry 命中：终止
//   - 其他：重试
//
// # 并发
//
// 单次调用内严格串行，同一时刻最多一次操作在执行；取消只在等待阶段检查，
// 进行中的调用总会执行完毕。单次尝试的超时需要由操作自身保证
// （拦截器提供 WithPerAttemptTimeout）。
package xretry
