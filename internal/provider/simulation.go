package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"vetting/internal/utils"
	"vetting/pkg/types"
)

// SimulatedIDPrefix marks correlation ids issued by the simulation adapter.
const SimulatedIDPrefix = "sim"

// SimulationAdapter is not a real integration. It stands in when a provider
// cannot be reached, and backs sandbox providers of kind "simulation".
//
// Submit reports in_progress immediately. The delayed approval is derived
// from elapsed time on the next status check, so it survives restarts.
type SimulationAdapter struct {
	approveAfter time.Duration
	now          func() time.Time
}

func NewSimulationAdapter(approveAfter time.Duration, now func() time.Time) *SimulationAdapter {
	if now == nil {
		now = time.Now
	}
	return &SimulationAdapter{approveAfter: approveAfter, now: now}
}

func (a *SimulationAdapter) Kind() types.ProviderKind {
	return types.ProviderKindSimulation
}

func (a *SimulationAdapter) ApproveAfter() time.Duration {
	return a.approveAfter
}

func (a *SimulationAdapter) Submit(_ context.Context, req SubmitRequest) (*SubmitResult, error) {
	return &SubmitResult{
		ExternalID: utils.PrefixedID(SimulatedIDPrefix),
		Status:     types.CheckStatusInProgress,
	}, nil
}

func (a *SimulationAdapter) CheckStatus(_ context.Context, req StatusRequest) (*StatusResult, error) {
	if a.now().Sub(req.RequestedAt) <= a.approveAfter {
		return &StatusResult{Status: types.CheckStatusInProgress}, nil
	}

	completedAt := req.RequestedAt.Add(a.approveAfter)
	return &StatusResult{
		Status:      types.CheckStatusApproved,
		CompletedAt: &completedAt,
		Results: &types.CheckResults{
			Overall:     types.ResultDecisionClear,
			Findings:    []types.Finding{},
			CompletedAt: &completedAt,
			Simulated:   true,
		},
	}, nil
}

type simulationWebhook struct {
	ExternalID string              `json:"externalId"`
	Status     types.CheckStatus   `json:"status"`
	Results    *types.CheckResults `json:"results"`
}

// ParseWebhook accepts the canonical {externalId, status, results} shape.
func (a *SimulationAdapter) ParseWebhook(payload []byte) (*WebhookUpdate, error) {
	var hook simulationWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, invalidWebhook("decode payload: %v", err)
	}
	if hook.ExternalID == "" {
		return nil, invalidWebhook("missing externalId")
	}
	if !hook.Status.Valid() || hook.Status == types.CheckStatusExpired {
		return nil, invalidWebhook("unsupported status %q", hook.Status)
	}

	update := &WebhookUpdate{
		ExternalID: hook.ExternalID,
		StatusResult: StatusResult{
			Status:  hook.Status,
			Results: hook.Results,
		},
	}
	if hook.Results != nil {
		update.CompletedAt = hook.Results.CompletedAt
	}
	return update, nil
}

// IsSimulatedID reports whether externalID was issued by a SimulationAdapter.
func IsSimulatedID(externalID string) bool {
	return strings.HasPrefix(externalID, SimulatedIDPrefix+"_")
}
