package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckType string

const (
	CheckTypeBasic           CheckType = "basic"
	CheckTypeComprehensive   CheckType = "comprehensive"
	CheckTypeChildProtection CheckType = "child_protection"
	CheckTypeYouthWorker     CheckType = "youth_worker"
	CheckTypeFinancial       CheckType = "financial"
)

var CheckTypes = []CheckType{
	CheckTypeBasic,
	CheckTypeComprehensive,
	CheckTypeChildProtection,
	CheckTypeYouthWorker,
	CheckTypeFinancial,
}

func (t CheckType) Valid() bool {
	for _, ct := range CheckTypes {
		if ct == t {
			return true
		}
	}
	return false
}

type CheckStatus string

const (
	CheckStatusPending        CheckStatus = "pending"
	CheckStatusInProgress     CheckStatus = "in_progress"
	CheckStatusApproved       CheckStatus = "approved"
	CheckStatusRejected       CheckStatus = "rejected"
	CheckStatusRequiresReview CheckStatus = "requires_review"
	CheckStatusExpired        CheckStatus = "expired"
)

// ActiveCheckStatuses are the statuses that still wait on a provider outcome.
var ActiveCheckStatuses = []CheckStatus{
	CheckStatusPending,
	CheckStatusInProgress,
	CheckStatusRequiresReview,
}

var checkTransitions = map[CheckStatus][]CheckStatus{
	CheckStatusPending: {
		CheckStatusInProgress,
		CheckStatusApproved,
		CheckStatusRejected,
		CheckStatusRequiresReview,
		CheckStatusExpired,
	},
	CheckStatusInProgress: {
		CheckStatusApproved,
		CheckStatusRejected,
		CheckStatusRequiresReview,
		CheckStatusExpired,
	},
	CheckStatusRequiresReview: {
		CheckStatusApproved,
		CheckStatusRejected,
		CheckStatusExpired,
	},
	CheckStatusApproved: {
		CheckStatusExpired,
	},
}

func (s CheckStatus) Valid() bool {
	switch s {
	case CheckStatusPending, CheckStatusInProgress, CheckStatusApproved,
		CheckStatusRejected, CheckStatusRequiresReview, CheckStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves s, apart from
// approved -> expired.
func (s CheckStatus) IsTerminal() bool {
	return s == CheckStatusApproved || s == CheckStatusRejected || s == CheckStatusExpired
}

// IsOutcome reports whether s is a decision made by a provider.
func (s CheckStatus) IsOutcome() bool {
	return s == CheckStatusApproved || s == CheckStatusRejected || s == CheckStatusRequiresReview
}

func (s CheckStatus) CanTransitionTo(next CheckStatus) bool {
	for _, allowed := range checkTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type BackgroundCheck struct {
	ID              string          `db:"id" json:"id"`
	VolunteerID     string          `db:"volunteer_id" json:"volunteerId"`
	ProviderID      string          `db:"provider_id" json:"providerId"`
	CheckType       CheckType       `db:"check_type" json:"checkType"`
	Status          CheckStatus     `db:"status" json:"status"`
	ExternalID      *string         `db:"external_id" json:"externalId,omitempty"`
	CandidateURL    *string         `db:"candidate_url" json:"candidateUrl,omitempty"`
	Simulated       bool            `db:"simulated" json:"simulated"`
	Cost            decimal.Decimal `db:"cost" json:"cost"`
	Results         *CheckResults   `db:"results" json:"results,omitempty"` // jsonb
	RenewalReminder bool            `db:"renewal_reminder" json:"renewalReminder"`
	RequestedAt     time.Time       `db:"requested_at" json:"requestedAt"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
	ExpiresAt       *time.Time      `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`

	Events []*CheckEvent `db:"-" json:"events,omitempty"`
}

func (c *BackgroundCheck) IsActive() bool {
	return !c.Status.IsTerminal()
}

// DaysUntilExpiration counts whole calendar days (UTC) between now and
// ExpiresAt. A check expiring later today reports 0.
func (c *BackgroundCheck) DaysUntilExpiration(now time.Time) (int, bool) {
	if c.ExpiresAt == nil {
		return 0, false
	}
	return CalendarDaysBetween(now, *c.ExpiresAt), true
}

func CalendarDaysBetween(from, to time.Time) int {
	f := from.UTC().Truncate(24 * time.Hour)
	t := to.UTC().Truncate(24 * time.Hour)
	return int(t.Sub(f).Hours() / 24)
}

type ResultDecision string

const (
	ResultDecisionClear    ResultDecision = "clear"
	ResultDecisionConsider ResultDecision = "consider"
	ResultDecisionFail     ResultDecision = "fail"
)

type FindingSeverity string

const (
	FindingSeverityLow    FindingSeverity = "low"
	FindingSeverityMedium FindingSeverity = "medium"
	FindingSeverityHigh   FindingSeverity = "high"
)

// CheckResults is the normalised findings payload a provider returns once a
// check completes.
type CheckResults struct {
	Overall     ResultDecision `json:"overall"`
	Findings    []Finding      `json:"findings"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Simulated   bool           `json:"simulated,omitempty"`
}

type Finding struct {
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Severity      FindingSeverity `json:"severity"`
	Disqualifying bool            `json:"disqualifying"`
}

func (r *CheckResults) HasDisqualifyingFinding() bool {
	if r == nil {
		return false
	}
	for _, f := range r.Findings {
		if f.Disqualifying {
			return true
		}
	}
	return false
}
