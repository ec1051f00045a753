package provider

import (
	"context"
	"testing"
	"time"

	"vetting/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulationSubmit(t *testing.T) {
	sim := NewSimulationAdapter(72*time.Hour, nil)

	result, err := sim.Submit(context.Background(), SubmitRequest{CheckType: types.CheckTypeComprehensive})
	require.NoError(t, err)

	assert.Equal(t, types.CheckStatusInProgress, result.Status)
	assert.True(t, IsSimulatedID(result.ExternalID))
	assert.Nil(t, result.Results)
}

func TestSimulationCheckStatus(t *testing.T) {
	requestedAt := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	now := requestedAt
	sim := NewSimulationAdapter(72*time.Hour, func() time.Time { return now })
	req := StatusRequest{ExternalID: "sim_x", RequestedAt: requestedAt}

	now = requestedAt.Add(72 * time.Hour)
	result, err := sim.CheckStatus(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.CheckStatusInProgress, result.Status, "threshold must be exceeded")

	now = requestedAt.Add(72*time.Hour + time.Minute)
	result, err = sim.CheckStatus(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.CheckStatusApproved, result.Status)
	require.NotNil(t, result.Results)
	assert.True(t, result.Results.Simulated)
	assert.Equal(t, types.ResultDecisionClear, result.Results.Overall)
	assert.True(t, result.CompletedAt.Equal(requestedAt.Add(72*time.Hour)))
}

func TestSimulationParseWebhook(t *testing.T) {
	sim := NewSimulationAdapter(time.Hour, nil)

	update, err := sim.ParseWebhook([]byte(`{"externalId":"sim_1","status":"approved","results":{"overall":"clear","findings":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, "sim_1", update.ExternalID)
	assert.Equal(t, types.CheckStatusApproved, update.Status)

	_, err = sim.ParseWebhook([]byte(`{"externalId":"sim_1","status":"expired"}`))
	require.ErrorIs(t, err, types.ErrInvalidWebhook)

	_, err = sim.ParseWebhook([]byte(`{"status":"approved"}`))
	require.ErrorIs(t, err, types.ErrInvalidWebhook)
}
