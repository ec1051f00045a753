package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vetting/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSterlingSubmit(t *testing.T) {
	var body sterlingScreeningRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key_sterling", r.Header.Get("Authorization"))
		assert.Equal(t, "/v2/screenings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		_, _ = w.Write([]byte(`{"id":"scr_9","status":"Pending","links":{"candidate":{"url":"https://sterling.test/c/9"}}}`))
	}))
	defer srv.Close()

	adapter := NewSterlingAdapter(testProvider("sterling", types.ProviderKindSterling, srv.URL), srv.Client())

	result, err := adapter.Submit(context.Background(), SubmitRequest{
		Candidate:   testCandidate(),
		CheckType:   types.CheckTypeBasic,
		CallbackURL: "https://vetting.test/webhooks/sterling",
	})
	require.NoError(t, err)

	assert.Equal(t, "scr_9", result.ExternalID)
	assert.Equal(t, types.CheckStatusPending, result.Status)
	assert.Equal(t, "https://sterling.test/c/9", result.CandidateURL)

	assert.Equal(t, "basic_pkg", body.PackageID)
	assert.Equal(t, "Jordan", body.Candidate.GivenName)
	assert.Equal(t, "1990-04-12", body.Candidate.DOB)
	require.NotNil(t, body.Candidate.Address)
	assert.Equal(t, "30301", body.Candidate.Address.PostalCode)
	require.NotNil(t, body.Callback)
	assert.Equal(t, "https://vetting.test/webhooks/sterling", body.Callback.URI)
}

func TestSterlingCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/screenings/scr_9", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "scr_9",
			"status": "Complete",
			"result": "Fail",
			"completedAt": "2026-02-10T09:30:00Z",
			"reportItems": [{"type": "sex_offender", "description": "registry match", "severity": "HIGH", "disqualifying": true}]
		}`))
	}))
	defer srv.Close()

	adapter := NewSterlingAdapter(testProvider("sterling", types.ProviderKindSterling, srv.URL), srv.Client())

	result, err := adapter.CheckStatus(context.Background(), StatusRequest{ExternalID: "scr_9"})
	require.NoError(t, err)

	assert.Equal(t, types.CheckStatusRejected, result.Status)
	require.NotNil(t, result.Results)
	assert.Equal(t, types.ResultDecisionFail, result.Results.Overall)
	assert.True(t, result.Results.HasDisqualifyingFinding())
	assert.Equal(t, types.FindingSeverityHigh, result.Results.Findings[0].Severity)
	require.NotNil(t, result.CompletedAt)
}

func TestSterlingStatusMapping(t *testing.T) {
	tests := []struct {
		status, result string
		want           types.CheckStatus
	}{
		{"Pending", "", types.CheckStatusPending},
		{"In Progress", "", types.CheckStatusInProgress},
		{"Complete", "Clear", types.CheckStatusApproved},
		{"Complete", "Consider", types.CheckStatusRequiresReview},
		{"Complete", "Fail", types.CheckStatusRejected},
		{"Cancelled", "", types.CheckStatusRejected},
	}

	for _, tt := range tests {
		got, _, err := sterlingStatus(tt.status, tt.result)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.status, tt.result)
	}

	_, _, err := sterlingStatus("Complete", "Maybe")
	assert.Error(t, err)
}

func TestSterlingUnknownStatusIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"scr_9","status":"Archived"}`))
	}))
	defer srv.Close()

	adapter := NewSterlingAdapter(testProvider("sterling", types.ProviderKindSterling, srv.URL), srv.Client())

	_, err := adapter.CheckStatus(context.Background(), StatusRequest{ExternalID: "scr_9"})
	require.ErrorIs(t, err, types.ErrProviderBadResponse)
}
