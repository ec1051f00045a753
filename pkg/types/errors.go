package types

import (
	"errors"
	"fmt"
)

var (
	ErrVolunteerNotFound    = errors.New("volunteer not found")
	ErrNoActiveProvider     = errors.New("no active provider")
	ErrDuplicateRequest     = errors.New("an active background check already exists for this volunteer and check type")
	ErrUnsupportedCheckType = errors.New("check type not supported by provider")
	ErrInvalidCandidateData = errors.New("invalid candidate data")
	ErrUnknownExternalID    = errors.New("unknown external id")
	ErrInvalidWebhook       = errors.New("invalid webhook payload")
	ErrCheckNotFound        = errors.New("background check not found")
	ErrInvalidTransition    = errors.New("invalid status transition")

	// ErrStaleCheck is returned by stores when a conditional update finds the
	// record in a different status than the caller read.
	ErrStaleCheck = errors.New("background check was modified concurrently")

	// ErrActiveCheckExists is returned by stores when inserting a second
	// non-terminal check for the same volunteer and check type.
	ErrActiveCheckExists = errors.New("active background check exists")

	// ErrExternalIDTaken is returned by stores when a provider correlation id
	// is already attached to another record.
	ErrExternalIDTaken = errors.New("external id already assigned")
)

// Provider communication failures. Adapters return these wrapped in a
// *ProviderError.
var (
	ErrProviderAuth        = errors.New("provider authentication failed")
	ErrProviderRateLimit   = errors.New("provider rate limit exceeded")
	ErrProviderTimeout     = errors.New("provider timed out")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderBadResponse = errors.New("provider returned an unexpected response")
)

// ProviderError normalises failures from external providers.
type ProviderError struct {
	ProviderID string
	Kind       error
	Message    string
	Err        error
}

func NewProviderError(providerID string, kind error, message string, err error) *ProviderError {
	return &ProviderError{
		ProviderID: providerID,
		Kind:       kind,
		Message:    message,
		Err:        err,
	}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %s: %v", e.ProviderID, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.ProviderID, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsProviderCommunicationError reports whether err is a provider failure that
// is recovered by falling back instead of being returned to the caller.
func IsProviderCommunicationError(err error) bool {
	return errors.Is(err, ErrProviderAuth) ||
		errors.Is(err, ErrProviderRateLimit) ||
		errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrProviderBadResponse)
}

// ProviderErrorReason returns a short label for metrics and audit events.
func ProviderErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrProviderAuth):
		return "auth"
	case errors.Is(err, ErrProviderRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrProviderBadResponse):
		return "bad_response"
	case errors.Is(err, ErrInvalidCandidateData):
		return "invalid_candidate"
	}
	return "unknown"
}
