package xretry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func classify(t *testing.T, err error, opts Options, caps CapabilitiesSupplier) error {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok)
	return StatusClassifier{}.Classify(err, st, &opts, caps)
}

func TestStatusClassifier_Terminal(t *testing.T) {
	terminal := []codes.Code{
		codes.InvalidArgument,
		codes.NotFound,
		codes.AlreadyExists,
		codes.FailedPrecondition,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.Unimplemented,
	}
	for _, c := range terminal {
		t.Run(c.String(), func(t *testing.T) {
			err := status.Error(c, "nope")
			assert.Same(t, err, classify(t, err, DefaultOptions(), nil))
		})
	}
}

func TestStatusClassifier_Retryable(t *testing.T) {
	retryable := []codes.Code{
		codes.Unknown,
		codes.DeadlineExceeded,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.OutOfRange,
		codes.Internal,
		codes.Unavailable,
		codes.DataLoss,
	}
	for _, c := range retryable {
		t.Run(c.String(), func(t *testing.T) {
			assert.NoError(t, classify(t, status.Error(c, "try again"), DefaultOptions(), StaticCapabilities{}))
		})
	}
}

func TestStatusClassifier_Canceled(t *testing.T) {
	err := status.Error(codes.Canceled, "client went away")
	final := classify(t, err, DefaultOptions(), nil)
	require.Error(t, final)
	assert.ErrorIs(t, final, ErrCanceled)
	assert.Equal(t, codes.Canceled, status.Code(final))
}

func TestStatusClassifier_Internal(t *testing.T) {
	err := status.Error(codes.Internal, "boom")

	assert.NoError(t, classify(t, err, DefaultOptions(), StaticCapabilities{}))
	assert.Same(t, err, classify(t, err, DefaultOptions(),
		StaticCapabilities{InternalErrorDifferentiation: true}))

	// 只有 Internal 才查询能力
	called := false
	caps := CapabilitiesFunc(func() Capabilities {
		called = true
		return Capabilities{}
	})
	_ = classify(t, status.Error(codes.Unavailable, "x"), DefaultOptions(), caps)
	assert.False(t, called)
}

func TestStatusClassifier_DoNotRetry(t *testing.T) {
	opts := NewOptions(WithDoNotRetry(codes.Unavailable, nil))
	err := status.Error(codes.Unavailable, "down")
	assert.Same(t, err, classify(t, err, opts, nil))
	assert.NoError(t, classify(t, status.Error(codes.Aborted, "x"), opts, nil))
}

func TestStatusClassifier_DoNotRetryDetail(t *testing.T) {
	opts := NewOptions(WithDoNotRetry(codes.ResourceExhausted, &errdetails.QuotaFailure{}))

	withDetail, err := status.New(codes.ResourceExhausted, "quota").WithDetails(&errdetails.QuotaFailure{
		Violations: []*errdetails.QuotaFailure_Violation{{Subject: "project:demo"}},
	})
	require.NoError(t, err)
	assert.Error(t, classify(t, withDetail.Err(), opts, nil))

	otherDetail, err := status.New(codes.ResourceExhausted, "quota").WithDetails(&errdetails.RetryInfo{})
	require.NoError(t, err)
	assert.NoError(t, classify(t, otherDetail.Err(), opts, nil))

	assert.NoError(t, classify(t, status.Error(codes.ResourceExhausted, "bare"), opts, nil))
}

func TestStatusClassifier_MergeMeaningful(t *testing.T) {
	c := StatusClassifier{}
	unavailable := status.Error(codes.Unavailable, "down")
	deadline := status.Error(codes.DeadlineExceeded, "slow")
	internal := status.Error(codes.Internal, "boom")

	assert.Same(t, deadline, c.MergeMeaningful(nil, deadline))
	assert.Same(t, unavailable, c.MergeMeaningful(unavailable, deadline))
	assert.Same(t, internal, c.MergeMeaningful(unavailable, internal))
	assert.Same(t, unavailable, c.MergeMeaningful(deadline, unavailable))

	plain := errors.New("plain")
	assert.Same(t, plain, c.MergeMeaningful(nil, plain))
}
