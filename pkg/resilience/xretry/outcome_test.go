package xretry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "pass_through", OutcomePassThrough.String())
	assert.Equal(t, "terminal", OutcomeTerminal.String())
	assert.Equal(t, "exhausted", OutcomeExhausted.String())
	assert.Equal(t, "cancelled", OutcomeCancelled.String())
	assert.Equal(t, "OutcomeKind(42)", OutcomeKind(42).String())
}

func TestOutcome_Unwrap(t *testing.T) {
	v, err := success("ok", 1).Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)

	boom := errors.New("boom")
	out := failed[string](OutcomeTerminal, boom, 2)
	assert.False(t, out.OK())
	v, err = out.Unwrap()
	assert.Empty(t, v)
	assert.Same(t, boom, err)
}
