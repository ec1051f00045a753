package provider

import (
	"time"

	"vetting/pkg/types"

	"github.com/shopspring/decimal"
)

func testCandidate() types.CandidateProfile {
	birth := time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC)
	zip := "30301"
	return types.CandidateProfile{
		Email:     "jordan@example.org",
		FirstName: "Jordan",
		LastName:  "Reyes",
		BirthDate: &birth,
		ZipCode:   &zip,
	}
}

func testProvider(id string, kind types.ProviderKind, endpoint string) *types.Provider {
	return &types.Provider{
		ID:                  id,
		Name:                id,
		Kind:                kind,
		APIEndpoint:         endpoint,
		APIKey:              "key_" + id,
		SupportedCheckTypes: []string{"basic", "child_protection"},
		CostPerCheck:        decimal.RequireFromString("35.00"),
		IsActive:            true,
		Settings: types.ProviderSettings{
			Packages: map[types.CheckType]string{
				types.CheckTypeBasic:           "basic_pkg",
				types.CheckTypeChildProtection: "child_pkg",
			},
		},
	}
}
