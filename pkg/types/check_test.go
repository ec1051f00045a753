package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to CheckStatus
		allowed  bool
	}{
		{CheckStatusPending, CheckStatusInProgress, true},
		{CheckStatusPending, CheckStatusApproved, true},
		{CheckStatusInProgress, CheckStatusRequiresReview, true},
		{CheckStatusInProgress, CheckStatusPending, false},
		{CheckStatusRequiresReview, CheckStatusApproved, true},
		{CheckStatusRequiresReview, CheckStatusInProgress, false},
		{CheckStatusApproved, CheckStatusExpired, true},
		{CheckStatusApproved, CheckStatusRejected, false},
		{CheckStatusRejected, CheckStatusApproved, false},
		{CheckStatusExpired, CheckStatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTerminalStatusesOnlyLeaveToExpired(t *testing.T) {
	all := []CheckStatus{
		CheckStatusPending, CheckStatusInProgress, CheckStatusApproved,
		CheckStatusRejected, CheckStatusRequiresReview, CheckStatusExpired,
	}

	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if from.CanTransitionTo(to) {
				assert.Equal(t, CheckStatusApproved, from, "only approved may leave a terminal status")
				assert.Equal(t, CheckStatusExpired, to)
			}
		}
	}
}

func TestDaysUntilExpiration(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

	check := &BackgroundCheck{}
	_, ok := check.DaysUntilExpiration(now)
	assert.False(t, ok)

	expires := time.Date(2026, 3, 8, 1, 0, 0, 0, time.UTC)
	check.ExpiresAt = &expires
	days, ok := check.DaysUntilExpiration(now)
	assert.True(t, ok)
	assert.Equal(t, 7, days, "calendar days ignore the time of day")

	sameDay := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	check.ExpiresAt = &sameDay
	days, _ = check.DaysUntilExpiration(now)
	assert.Equal(t, 0, days)
}

func TestHasDisqualifyingFinding(t *testing.T) {
	var nilResults *CheckResults
	assert.False(t, nilResults.HasDisqualifyingFinding())

	results := &CheckResults{Findings: []Finding{
		{Category: "traffic", Severity: FindingSeverityLow},
	}}
	assert.False(t, results.HasDisqualifyingFinding())

	results.Findings = append(results.Findings, Finding{Category: "sex_offender_registry", Disqualifying: true})
	assert.True(t, results.HasDisqualifyingFinding())
}
