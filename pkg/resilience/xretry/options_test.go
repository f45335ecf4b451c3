package xretry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, 100*time.Millisecond, o.InitialInterval)
	assert.Equal(t, time.Second, o.CongestionInitialInterval)
	assert.Equal(t, time.Minute, o.MaximumInterval)
	assert.InDelta(t, 1.7, o.BackoffCoefficient, 1e-9)
	assert.InDelta(t, 0.1, o.MaximumJitterCoefficient, 1e-9)
	assert.Equal(t, 0, o.MaximumAttempts)
	assert.Equal(t, time.Minute, o.Expiration)
	assert.NoError(t, o.Validate())
}

func TestNewOptions(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	o := NewOptions(
		WithInitialInterval(time.Second),
		WithCongestionInitialInterval(2*time.Second),
		WithMaximumInterval(30*time.Second),
		WithBackoffCoefficient(2),
		WithMaximumJitterCoefficient(0.5),
		WithMaximumAttempts(4),
		WithExpiration(time.Hour),
		WithDeadline(deadline),
		WithDoNotRetry(codes.Unavailable, nil),
		nil,
	)
	assert.Equal(t, time.Second, o.InitialInterval)
	assert.Equal(t, 2*time.Second, o.CongestionInitialInterval)
	assert.Equal(t, 30*time.Second, o.MaximumInterval)
	assert.InDelta(t, 2.0, o.BackoffCoefficient, 1e-9)
	assert.InDelta(t, 0.5, o.MaximumJitterCoefficient, 1e-9)
	assert.Equal(t, 4, o.MaximumAttempts)
	assert.Equal(t, time.Hour, o.Expiration)
	assert.Equal(t, deadline, o.Deadline)
	assert.Equal(t, []DoNotRetryItem{{Code: codes.Unavailable}}, o.DoNotRetry)
	assert.NoError(t, o.Validate())
}

func TestWithDoNotRetry_DoesNotAlias(t *testing.T) {
	base := NewOptions(WithDoNotRetry(codes.Unavailable, nil))
	a := base
	WithDoNotRetry(codes.Aborted, nil)(&a)
	b := base
	WithDoNotRetry(codes.DataLoss, nil)(&b)

	assert.Len(t, base.DoNotRetry, 1)
	assert.Equal(t, codes.Aborted, a.DoNotRetry[1].Code)
	assert.Equal(t, codes.DataLoss, b.DoNotRetry[1].Code)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero initial", WithInitialInterval(0)},
		{"negative initial", WithInitialInterval(-time.Second)},
		{"negative congestion", WithCongestionInitialInterval(-time.Second)},
		{"congestion below initial", WithCongestionInitialInterval(time.Millisecond)},
		{"negative maximum", WithMaximumInterval(-time.Second)},
		{"maximum below initial", WithMaximumInterval(time.Millisecond)},
		{"coefficient below one", WithBackoffCoefficient(0.9)},
		{"coefficient NaN", WithBackoffCoefficient(math.NaN())},
		{"negative jitter", WithMaximumJitterCoefficient(-0.1)},
		{"jitter one", WithMaximumJitterCoefficient(1)},
		{"jitter NaN", WithMaximumJitterCoefficient(math.NaN())},
		{"negative attempts", WithMaximumAttempts(-1)},
		{"negative expiration", WithExpiration(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewOptions(tt.opt).Validate()
			assert.ErrorIs(t, err, ErrInvalidOptions)
			assert.True(t, IsInvalidOptions(err))
		})
	}
}

func TestOptions_ValidateBoundaries(t *testing.T) {
	valid := []Option{
		WithCongestionInitialInterval(0),
		WithMaximumInterval(0),
		WithBackoffCoefficient(1),
		WithMaximumJitterCoefficient(0),
		WithMaximumAttempts(0),
		WithExpiration(0),
		WithCongestionInitialInterval(DefaultInitialInterval),
	}
	for _, opt := range valid {
		assert.NoError(t, NewOptions(opt).Validate())
	}
}

func TestOptions_ValidateIdempotent(t *testing.T) {
	o := NewOptions(WithMaximumAttempts(3))
	before := o
	for range 3 {
		assert.NoError(t, o.Validate())
	}
	assert.Equal(t, before, o)

	bad := NewOptions(WithInitialInterval(0))
	assert.Equal(t, bad.Validate().Error(), bad.Validate().Error())
}
