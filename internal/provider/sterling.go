package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"vetting/pkg/types"
)

// SterlingAdapter talks to a Sterling style screenings API.
type SterlingAdapter struct {
	provider *types.Provider
	client   *jsonClient
}

func NewSterlingAdapter(p *types.Provider, httpClient *http.Client) *SterlingAdapter {
	return &SterlingAdapter{
		provider: p,
		client: &jsonClient{
			providerID: p.ID,
			endpoint:   p.APIEndpoint,
			httpClient: httpClient,
			authorize: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+p.APIKey)
			},
		},
	}
}

func (a *SterlingAdapter) Kind() types.ProviderKind {
	return types.ProviderKindSterling
}

type sterlingAddress struct {
	AddressLine string `json:"addressLine,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
}

type sterlingCandidate struct {
	GivenName  string           `json:"givenName"`
	FamilyName string           `json:"familyName"`
	Email      string           `json:"email"`
	DOB        string           `json:"dob"`
	Phone      string           `json:"phone,omitempty"`
	Address    *sterlingAddress `json:"address,omitempty"`
}

type sterlingCallback struct {
	URI string `json:"uri"`
}

type sterlingScreeningRequest struct {
	PackageID string            `json:"packageId"`
	Candidate sterlingCandidate `json:"candidate"`
	Callback  *sterlingCallback `json:"callback,omitempty"`
}

type sterlingReportItem struct {
	Type          string `json:"type"`
	Description   string `json:"description"`
	Severity      string `json:"severity"`
	Disqualifying bool   `json:"disqualifying"`
}

type sterlingScreening struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	Result      string               `json:"result"`
	SubmittedAt *time.Time           `json:"submittedAt"`
	CompletedAt *time.Time           `json:"completedAt"`
	ReportItems []sterlingReportItem `json:"reportItems"`
	Links       struct {
		Candidate struct {
			URL string `json:"url"`
		} `json:"candidate"`
	} `json:"links"`
}

type sterlingWebhook struct {
	Type    string             `json:"type"`
	Payload *sterlingScreening `json:"payload"`
}

func (a *SterlingAdapter) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	pkg, ok := a.provider.PackageFor(req.CheckType)
	if !ok {
		return nil, unsupported(a.provider.ID, req.CheckType)
	}

	if err := req.Candidate.Validate(); err != nil {
		return nil, err
	}

	body := sterlingScreeningRequest{
		PackageID: pkg,
		Candidate: sterlingCandidate{
			GivenName:  req.Candidate.FirstName,
			FamilyName: req.Candidate.LastName,
			Email:      req.Candidate.Email,
			DOB:        req.Candidate.BirthDate.Format(dateLayout),
		},
	}
	if req.Candidate.Phone != nil {
		body.Candidate.Phone = *req.Candidate.Phone
	}
	if req.Candidate.Address != nil || req.Candidate.ZipCode != nil {
		body.Candidate.Address = &sterlingAddress{}
		if req.Candidate.Address != nil {
			body.Candidate.Address.AddressLine = *req.Candidate.Address
		}
		if req.Candidate.ZipCode != nil {
			body.Candidate.Address.PostalCode = *req.Candidate.ZipCode
		}
	}
	if req.CallbackURL != "" {
		body.Callback = &sterlingCallback{URI: req.CallbackURL}
	}

	var screening sterlingScreening
	if err := a.client.do(ctx, http.MethodPost, "/v2/screenings", body, &screening); err != nil {
		return nil, err
	}
	if screening.ID == "" {
		return nil, types.NewProviderError(a.provider.ID, types.ErrProviderBadResponse, "screening response missing id", nil)
	}

	result, err := a.mapScreening(&screening)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		ExternalID:   screening.ID,
		Status:       result.Status,
		CandidateURL: screening.Links.Candidate.URL,
		Results:      result.Results,
		CompletedAt:  result.CompletedAt,
	}, nil
}

func (a *SterlingAdapter) CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	var screening sterlingScreening
	path := fmt.Sprintf("/v2/screenings/%s", url.PathEscape(req.ExternalID))
	if err := a.client.do(ctx, http.MethodGet, path, nil, &screening); err != nil {
		return nil, err
	}

	return a.mapScreening(&screening)
}

func (a *SterlingAdapter) ParseWebhook(payload []byte) (*WebhookUpdate, error) {
	var hook sterlingWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, invalidWebhook("decode sterling payload: %v", err)
	}
	if hook.Payload == nil || hook.Payload.ID == "" {
		return nil, invalidWebhook("sterling payload missing screening")
	}

	result, err := a.mapScreening(hook.Payload)
	if err != nil {
		return nil, invalidWebhook("%v", err)
	}

	return &WebhookUpdate{ExternalID: hook.Payload.ID, StatusResult: *result}, nil
}

func (a *SterlingAdapter) mapScreening(s *sterlingScreening) (*StatusResult, error) {
	status, decision, err := sterlingStatus(s.Status, s.Result)
	if err != nil {
		return nil, types.NewProviderError(a.provider.ID, types.ErrProviderBadResponse, "unmapped screening status", err)
	}

	out := &StatusResult{Status: status}
	if !status.IsOutcome() {
		return out, nil
	}

	results := &types.CheckResults{
		Overall:     decision,
		Findings:    make([]types.Finding, 0, len(s.ReportItems)),
		CompletedAt: s.CompletedAt,
	}
	for _, item := range s.ReportItems {
		results.Findings = append(results.Findings, types.Finding{
			Category:      item.Type,
			Description:   item.Description,
			Severity:      normaliseSeverity(item.Severity),
			Disqualifying: item.Disqualifying,
		})
	}

	out.Results = results
	out.CompletedAt = s.CompletedAt
	return out, nil
}

func sterlingStatus(status, result string) (types.CheckStatus, types.ResultDecision, error) {
	switch status {
	case "Pending":
		return types.CheckStatusPending, "", nil
	case "In Progress":
		return types.CheckStatusInProgress, "", nil
	case "Cancelled":
		return types.CheckStatusRejected, types.ResultDecisionFail, nil
	case "Complete":
		switch result {
		case "Clear":
			return types.CheckStatusApproved, types.ResultDecisionClear, nil
		case "Consider":
			return types.CheckStatusRequiresReview, types.ResultDecisionConsider, nil
		case "Fail":
			return types.CheckStatusRejected, types.ResultDecisionFail, nil
		}
		return "", "", fmt.Errorf("unknown sterling result %q", result)
	}
	return "", "", fmt.Errorf("unknown sterling status %q", status)
}
