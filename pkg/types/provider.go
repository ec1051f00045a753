package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProviderKind string

const (
	ProviderKindCheckr     ProviderKind = "checkr"
	ProviderKindSterling   ProviderKind = "sterling"
	ProviderKindSimulation ProviderKind = "simulation"
)

// IsIntegration reports whether the kind talks to a real external provider.
func (k ProviderKind) IsIntegration() bool {
	return k == ProviderKindCheckr || k == ProviderKindSterling
}

type Provider struct {
	ID                    string           `db:"id" yaml:"id"`
	Name                  string           `db:"name" yaml:"name"`
	Kind                  ProviderKind     `db:"kind" yaml:"kind"`
	APIEndpoint           string           `db:"api_endpoint" yaml:"api_endpoint"`
	APIKey                string           `db:"api_key" yaml:"api_key"`
	SupportedCheckTypes   []string         `db:"supported_check_types" yaml:"supported_check_types"`
	AverageProcessingDays int              `db:"average_processing_days" yaml:"average_processing_days"`
	CostPerCheck          decimal.Decimal  `db:"cost_per_check" yaml:"cost_per_check"`
	IsActive              bool             `db:"is_active" yaml:"is_active"`
	Priority              int              `db:"priority" yaml:"priority"`
	Settings              ProviderSettings `db:"settings" yaml:"settings"` // jsonb
	CreatedAt             time.Time        `db:"created_at" yaml:"-"`
	UpdatedAt             time.Time        `db:"updated_at" yaml:"-"`
}

// ProviderSettings holds provider specific configuration.
type ProviderSettings struct {
	// Packages maps a check type to the provider's package/product id.
	Packages      map[CheckType]string `json:"packages,omitempty" yaml:"packages"`
	ValidityDays  int                  `json:"validityDays,omitempty" yaml:"validity_days"`
	WebhookSecret string               `json:"webhookSecret,omitempty" yaml:"webhook_secret"`
	JWKSURL       string               `json:"jwksUrl,omitempty" yaml:"jwks_url"`
	CallbackURL   string               `json:"callbackUrl,omitempty" yaml:"callback_url"`
}

func (p *Provider) Supports(checkType CheckType) bool {
	for _, ct := range p.SupportedCheckTypes {
		if CheckType(ct) == checkType {
			return true
		}
	}
	return false
}

func (p *Provider) PackageFor(checkType CheckType) (string, bool) {
	pkg, ok := p.Settings.Packages[checkType]
	if !ok || pkg == "" {
		return "", false
	}
	return pkg, true
}

// Validity returns how long an approved check from this provider remains
// valid, falling back to def when the provider does not say.
func (p *Provider) Validity(def time.Duration) time.Duration {
	if p.Settings.ValidityDays > 0 {
		return time.Duration(p.Settings.ValidityDays) * 24 * time.Hour
	}
	return def
}
