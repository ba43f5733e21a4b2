package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"validation", Validation("bad time %q", "25:00"), KindValidation},
		{"wrapped conflict", fmt.Errorf("book: %w", Conflict("unit is full")), KindConflict},
		{"plain error", errors.New("boom"), KindInternal},
		{"processor", Processor(errors.New("timeout"), "capture failed"), KindProcessor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("accept: %w", Transition("request", "ACCEPTED", "REJECTED"))

	assert.True(t, errors.Is(err, &Error{Kind: KindConflict}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation}))
}

func TestTransitionMeta(t *testing.T) {
	err := Transition("engagement", "COMPLETED", "CANCELLED")

	assert.Equal(t, "COMPLETED", err.Meta["from"])
	assert.Equal(t, "CANCELLED", err.Meta["to"])
	assert.Contains(t, err.Error(), "engagement cannot move from COMPLETED to CANCELLED")
}

func TestPublicMessageHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:443: connection refused")

	assert.Equal(t, "payment processor unavailable, please retry", PublicMessage(Processor(cause, "capture")))
	assert.Equal(t, "internal error", PublicMessage(cause))
	assert.Equal(t, "unit is full", PublicMessage(Conflict("unit is full")))
	assert.True(t, IsRetryable(Processor(cause, "refund")))
	assert.False(t, IsRetryable(Conflict("x")))
}
