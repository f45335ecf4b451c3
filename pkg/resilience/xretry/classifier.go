package xretry

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// Classifier 将 gRPC 状态失败分为终止性与可重试两类，并维护"最后一次有意义的失败"。
type Classifier interface {
	// Classify 返回非 nil 表示终止性错误（直接返回给调用方），nil 表示可重试。
	// err 为原始错误，st 为从中解析出的状态。
	Classify(err error, st *status.Status, opts *Options, caps CapabilitiesSupplier) error

	// MergeMeaningful 在 previous（可能为 nil）与 current 之间选出更有诊断价值的失败
	MergeMeaningful(previous, current error) error
}

// StatusClassifier 默认分类器。
//
// 判定规则：
//   - Canceled：终止，返回包装了 ErrCanceled 的错误
//   - InvalidArgument、NotFound、AlreadyExists、FailedPrecondition、
//     PermissionDenied、Unauthenticated、Unimplemented：终止，原样返回
//   - Internal：服务端声明 InternalErrorDifferentiation 时终止，否则重试
//   - DeadlineExceeded：重试（视为单次尝试超时，而非整个重试序列超时）
//   - 其他：命中 Options.DoNotRetry 时终止，否则重试
//
// 合并规则：DeadlineExceeded 不覆盖之前记录的失败，其余情况取最新失败。
type StatusClassifier struct{}

// Classify 实现 Classifier
func (StatusClassifier) Classify(err error, st *status.Status, opts *Options, caps CapabilitiesSupplier) error {
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("%w: grpc request was canceled: %w", ErrCanceled, err)
	case codes.InvalidArgument,
		codes.NotFound,
		codes.AlreadyExists,
		codes.FailedPrecondition,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.Unimplemented:
		return err
	case codes.Internal:
		if caps != nil && caps.Capabilities().InternalErrorDifferentiation {
			return err
		}
		return nil
	case codes.DeadlineExceeded:
		return nil
	}

	if opts != nil {
		for _, item := range opts.DoNotRetry {
			if item.Code == st.Code() && hasDetail(st, item.Detail) {
				return err
			}
		}
	}
	return nil
}

// MergeMeaningful 实现 Classifier
func (StatusClassifier) MergeMeaningful(previous, current error) error {
	if previous != nil && status.Code(current) == codes.DeadlineExceeded {
		return previous
	}
	return current
}

// hasDetail 判断状态 details 中是否含有与 detail 同类型的消息，detail 为 nil 时恒为 true
func hasDetail(st *status.Status, detail proto.Message) bool {
	if detail == nil {
		return true
	}
	want := proto.MessageName(detail)
	for _, a := range st.Proto().GetDetails() {
		if a.MessageName() == want {
			return true
		}
	}
	return false
}

var _ Classifier = StatusClassifier{}
