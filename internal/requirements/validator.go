package requirements

import (
	"context"
	"fmt"
	"time"

	"vetting/pkg/types"

	"github.com/sirupsen/logrus"
)

const warningDateLayout = "2006-01-02"

type RequirementStore interface {
	RequirementsByOpportunity(ctx context.Context, opportunityID string) ([]*types.Requirement, error)
}

type CheckStore interface {
	ChecksByVolunteer(ctx context.Context, volunteerID string, statuses ...types.CheckStatus) ([]*types.BackgroundCheck, error)
}

type VolunteerStore interface {
	Volunteer(ctx context.Context, volunteerID string) (*types.Volunteer, error)
}

// Validator decides whether a volunteer's completed checks satisfy an
// opportunity's requirements.
type Validator struct {
	logger       logrus.FieldLogger
	requirements RequirementStore
	checks       CheckStore
	volunteers   VolunteerStore
	now          func() time.Time
}

func NewValidator(logger logrus.FieldLogger, requirements RequirementStore, checks CheckStore, volunteers VolunteerStore, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		logger:       logger,
		requirements: requirements,
		checks:       checks,
		volunteers:   volunteers,
		now:          now,
	}
}

func (v *Validator) Validate(ctx context.Context, volunteerID, opportunityID string) (*types.ValidationResult, error) {
	result := &types.ValidationResult{
		IsValid:       true,
		MissingChecks: make([]types.CheckType, 0),
		ExpiredChecks: make([]types.CheckType, 0),
		Warnings:      make([]string, 0),
	}

	requirements, err := v.requirements.RequirementsByOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load requirements for opportunity %s: %w", opportunityID, err)
	}

	required := make([]*types.Requirement, 0, len(requirements))
	for _, r := range requirements {
		if r.IsRequired {
			required = append(required, r)
		}
	}
	if len(required) == 0 {
		return result, nil
	}

	if _, err := v.volunteers.Volunteer(ctx, volunteerID); err != nil {
		return nil, err
	}

	checks, err := v.checks.ChecksByVolunteer(ctx, volunteerID, types.CheckStatusApproved, types.CheckStatusExpired)
	if err != nil {
		return nil, fmt.Errorf("failed to load checks for volunteer %s: %w", volunteerID, err)
	}

	latest := latestByType(checks)
	now := v.now()

	for _, r := range required {
		check, ok := latest[r.CheckType]
		if !ok {
			result.MissingChecks = append(result.MissingChecks, r.CheckType)
			continue
		}

		if check.Status == types.CheckStatusExpired || !check.ExpiresAt.After(now) {
			result.ExpiredChecks = append(result.ExpiredChecks, r.CheckType)
			continue
		}

		grace := time.Duration(r.GracePeriodDays) * 24 * time.Hour
		if check.ExpiresAt.Sub(now) <= grace {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s expires on %s", r.CheckType, check.ExpiresAt.UTC().Format(warningDateLayout)))
		}

		if check.Simulated {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s approval was simulated and has not been confirmed by the provider", r.CheckType))
		}
	}

	result.IsValid = len(result.MissingChecks) == 0 && len(result.ExpiredChecks) == 0

	v.logger.WithFields(logrus.Fields{
		"volunteer_id":   volunteerID,
		"opportunity_id": opportunityID,
		"is_valid":       result.IsValid,
		"missing":        len(result.MissingChecks),
		"expired":        len(result.ExpiredChecks),
		"warnings":       len(result.Warnings),
	}).Debug("validated volunteer requirements")

	return result, nil
}

// latestByType picks, per check type, the completed check that expires last.
// Checks without an expiry are ignored.
func latestByType(checks []*types.BackgroundCheck) map[types.CheckType]*types.BackgroundCheck {
	latest := make(map[types.CheckType]*types.BackgroundCheck)
	for _, c := range checks {
		if c.ExpiresAt == nil {
			continue
		}
		current, ok := latest[c.CheckType]
		if !ok || c.ExpiresAt.After(*current.ExpiresAt) ||
			(c.ExpiresAt.Equal(*current.ExpiresAt) && c.Status == types.CheckStatusApproved) {
			latest[c.CheckType] = c
		}
	}
	return latest
}
