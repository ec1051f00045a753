package provider

import (
	"context"
	"time"

	"vetting/pkg/types"
)

// Adapter is implemented once per external background-check provider.
// Adapters translate between the canonical check model and the provider's
// API; they never persist anything.
type Adapter interface {
	Kind() types.ProviderKind

	// Submit starts a check for the candidate and returns the provider's
	// correlation id and initial status.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)

	// CheckStatus fetches the current state of a previously submitted check.
	CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error)

	// ParseWebhook decodes an inbound status delivery. Malformed payloads
	// return types.ErrInvalidWebhook.
	ParseWebhook(payload []byte) (*WebhookUpdate, error)
}

type SubmitRequest struct {
	Candidate   types.CandidateProfile
	CheckType   types.CheckType
	CallbackURL string
	RequestedAt time.Time
}

type SubmitResult struct {
	ExternalID   string
	Status       types.CheckStatus
	CandidateURL string
	Results      *types.CheckResults
	CompletedAt  *time.Time
}

type StatusRequest struct {
	ExternalID  string
	CheckType   types.CheckType
	RequestedAt time.Time
}

type StatusResult struct {
	Status      types.CheckStatus
	Results     *types.CheckResults
	CompletedAt *time.Time
}

type WebhookUpdate struct {
	ExternalID string
	StatusResult
}
