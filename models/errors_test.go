package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	notFound := NewLookupError(KindNotFound, "Placa não encontrada.", nil)
	wrapped := fmt.Errorf("attempt 2: %w", NewLookupError(KindTimeout, "slow", context.DeadlineExceeded))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", notFound, KindNotFound},
		{"wrapped", wrapped, KindTimeout},
		{"unclassified", errors.New("boom"), KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestLookupError_UnwrapAndDetail(t *testing.T) {
	cause := errors.New("net::ERR_CONNECTION_RESET")
	err := NewLookupError(KindTransient, "navigation failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "TRANSIENT_FAILURE")

	detail := err.ToDetail()
	assert.Equal(t, StatusError, detail.Status)
	assert.Equal(t, KindTransient, detail.Code)
	assert.Equal(t, "navigation failed", detail.Detail)
	assert.NotContains(t, detail.Detail, "ERR_CONNECTION_RESET")
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeOf(nil))
	assert.Equal(t, "NOT_FOUND", OutcomeOf(NewLookupError(KindNotFound, "x", nil)))
}
