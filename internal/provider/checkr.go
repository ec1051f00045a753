package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"vetting/internal/utils"
	"vetting/pkg/types"
)

// CheckrAdapter talks to a Checkr style candidates + reports API.
type CheckrAdapter struct {
	provider *types.Provider
	client   *jsonClient
}

func NewCheckrAdapter(p *types.Provider, httpClient *http.Client) *CheckrAdapter {
	return &CheckrAdapter{
		provider: p,
		client: &jsonClient{
			providerID: p.ID,
			endpoint:   p.APIEndpoint,
			httpClient: httpClient,
			authorize: func(req *http.Request) {
				req.SetBasicAuth(p.APIKey, "")
			},
		},
	}
}

func (a *CheckrAdapter) Kind() types.ProviderKind {
	return types.ProviderKindCheckr
}

type checkrCandidate struct {
	ID        string  `json:"id,omitempty"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	DOB       string  `json:"dob"`
	Phone     *string `json:"phone,omitempty"`
	Zipcode   *string `json:"zipcode,omitempty"`
}

type checkrReportRequest struct {
	CandidateID string `json:"candidate_id"`
	Package     string `json:"package"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type checkrRecord struct {
	Type          string `json:"type"`
	Description   string `json:"description"`
	Severity      string `json:"severity"`
	Disqualifying bool   `json:"disqualifying"`
}

type checkrReport struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Result        *string        `json:"result"`
	Adjudication  *string        `json:"adjudication"`
	CompletedAt   *time.Time     `json:"completed_at"`
	InvitationURL string         `json:"invitation_url"`
	Records       []checkrRecord `json:"records"`
}

type checkrWebhook struct {
	Type string `json:"type"`
	Data struct {
		Object *checkrReport `json:"object"`
	} `json:"data"`
}

func (a *CheckrAdapter) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	pkg, ok := a.provider.PackageFor(req.CheckType)
	if !ok {
		return nil, unsupported(a.provider.ID, req.CheckType)
	}

	if err := req.Candidate.Validate(); err != nil {
		return nil, err
	}

	candidate := checkrCandidate{
		FirstName: req.Candidate.FirstName,
		LastName:  req.Candidate.LastName,
		Email:     req.Candidate.Email,
		DOB:       req.Candidate.BirthDate.Format(dateLayout),
		Phone:     req.Candidate.Phone,
		Zipcode:   req.Candidate.ZipCode,
	}

	var created checkrCandidate
	if err := a.client.do(ctx, http.MethodPost, "/v1/candidates", candidate, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, types.NewProviderError(a.provider.ID, types.ErrProviderBadResponse, "candidate response missing id", nil)
	}

	var report checkrReport
	err := a.client.do(ctx, http.MethodPost, "/v1/reports", checkrReportRequest{
		CandidateID: created.ID,
		Package:     pkg,
		CallbackURL: req.CallbackURL,
	}, &report)
	if err != nil {
		return nil, err
	}
	if report.ID == "" {
		return nil, types.NewProviderError(a.provider.ID, types.ErrProviderBadResponse, "report response missing id", nil)
	}

	result, err := a.mapReport(&report)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		ExternalID:   report.ID,
		Status:       result.Status,
		CandidateURL: report.InvitationURL,
		Results:      result.Results,
		CompletedAt:  result.CompletedAt,
	}, nil
}

func (a *CheckrAdapter) CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	var report checkrReport
	path := fmt.Sprintf("/v1/reports/%s", url.PathEscape(req.ExternalID))
	if err := a.client.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}

	return a.mapReport(&report)
}

func (a *CheckrAdapter) ParseWebhook(payload []byte) (*WebhookUpdate, error) {
	var hook checkrWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, invalidWebhook("decode checkr payload: %v", err)
	}

	report := hook.Data.Object
	if report == nil || report.ID == "" {
		return nil, invalidWebhook("checkr payload missing report")
	}

	result, err := a.mapReport(report)
	if err != nil {
		return nil, invalidWebhook("%v", err)
	}

	return &WebhookUpdate{ExternalID: report.ID, StatusResult: *result}, nil
}

func (a *CheckrAdapter) mapReport(report *checkrReport) (*StatusResult, error) {
	status, err := checkrStatus(report)
	if err != nil {
		return nil, types.NewProviderError(a.provider.ID, types.ErrProviderBadResponse, "unmapped report status", err)
	}

	out := &StatusResult{Status: status}
	if !status.IsOutcome() {
		return out, nil
	}

	completedAt := report.CompletedAt
	results := &types.CheckResults{
		Overall:     checkrDecision(status),
		Findings:    make([]types.Finding, 0, len(report.Records)),
		CompletedAt: completedAt,
	}
	for _, rec := range report.Records {
		results.Findings = append(results.Findings, types.Finding{
			Category:      rec.Type,
			Description:   rec.Description,
			Severity:      normaliseSeverity(rec.Severity),
			Disqualifying: rec.Disqualifying,
		})
	}

	out.Results = results
	out.CompletedAt = completedAt
	return out, nil
}

func checkrStatus(report *checkrReport) (types.CheckStatus, error) {
	switch report.Status {
	case "pending":
		return types.CheckStatusInProgress, nil
	case "clear":
		return types.CheckStatusApproved, nil
	case "consider", "suspended", "dispute":
		return types.CheckStatusRequiresReview, nil
	case "canceled":
		return types.CheckStatusRejected, nil
	case "complete":
		if report.Adjudication != nil {
			switch *report.Adjudication {
			case "engaged":
				return types.CheckStatusApproved, nil
			case "adverse_action":
				return types.CheckStatusRejected, nil
			}
		}
		if utils.PtrString(report.Result) == "clear" {
			return types.CheckStatusApproved, nil
		}
		return types.CheckStatusRequiresReview, nil
	}
	return "", fmt.Errorf("unknown checkr status %q", report.Status)
}

func checkrDecision(status types.CheckStatus) types.ResultDecision {
	switch status {
	case types.CheckStatusApproved:
		return types.ResultDecisionClear
	case types.CheckStatusRejected:
		return types.ResultDecisionFail
	}
	return types.ResultDecisionConsider
}

func normaliseSeverity(s string) types.FindingSeverity {
	switch types.FindingSeverity(s) {
	case types.FindingSeverityLow, types.FindingSeverityMedium, types.FindingSeverityHigh:
		return types.FindingSeverity(s)
	case "minor", "Low", "LOW":
		return types.FindingSeverityLow
	case "major", "High", "HIGH":
		return types.FindingSeverityHigh
	}
	return types.FindingSeverityMedium
}
