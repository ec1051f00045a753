package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderErrorMatching(t *testing.T) {
	err := fmt.Errorf("submit: %w",
		NewProviderError("checkr", ErrProviderTimeout, "request timed out", context.DeadlineExceeded))

	assert.ErrorIs(t, err, ErrProviderTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsProviderCommunicationError(err))
	assert.Equal(t, "timeout", ProviderErrorReason(err))

	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "checkr", pe.ProviderID)
}

func TestProviderErrorReason(t *testing.T) {
	tests := map[string]error{
		"auth":              NewProviderError("p", ErrProviderAuth, "", nil),
		"rate_limit":        NewProviderError("p", ErrProviderRateLimit, "", nil),
		"unavailable":       NewProviderError("p", ErrProviderUnavailable, "", nil),
		"bad_response":      NewProviderError("p", ErrProviderBadResponse, "", nil),
		"invalid_candidate": NewProviderError("p", ErrInvalidCandidateData, "", nil),
		"unknown":           errors.New("boom"),
	}

	for want, err := range tests {
		assert.Equal(t, want, ProviderErrorReason(err))
	}

	assert.False(t, IsProviderCommunicationError(NewProviderError("p", ErrInvalidCandidateData, "", nil)))
}
