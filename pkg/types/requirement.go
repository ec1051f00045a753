package types

import "time"

type Requirement struct {
	ID              string    `db:"id" yaml:"id"`
	OpportunityID   string    `db:"opportunity_id" yaml:"opportunity_id"`
	CheckType       CheckType `db:"check_type" yaml:"check_type"`
	IsRequired      bool      `db:"is_required" yaml:"is_required"`
	GracePeriodDays int       `db:"grace_period_days" yaml:"grace_period_days"`
	CreatedAt       time.Time `db:"created_at" yaml:"-"`
}

type ValidationResult struct {
	IsValid       bool        `json:"isValid"`
	MissingChecks []CheckType `json:"missingChecks"`
	ExpiredChecks []CheckType `json:"expiredChecks"`
	Warnings      []string    `json:"warnings"`
}
