package seed

import (
	"fmt"
	"os"

	"vetting/pkg/types"

	"gopkg.in/yaml.v3"
)

// Fixtures is the YAML file that is the source of truth for provider
// profiles and opportunity requirements in a given environment. Volunteers
// are only listed for local environments where no people directory exists.
type Fixtures struct {
	Providers    []*types.Provider    `yaml:"providers"`
	Requirements []*types.Requirement `yaml:"requirements"`
	Volunteers   []*types.Volunteer   `yaml:"volunteers"`
}

// LoadFixtures reads a fixtures file, expanding ${VAR} references so
// credentials can stay in the environment.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures %s: %w", path, err)
	}

	return ParseFixtures([]byte(os.ExpandEnv(string(data))))
}

func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

func (f *Fixtures) validate() error {
	seen := make(map[string]bool)
	for _, p := range f.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider %q has no id", p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %s listed twice", p.ID)
		}
		seen[p.ID] = true

		switch p.Kind {
		case types.ProviderKindCheckr, types.ProviderKindSterling:
			if p.APIEndpoint == "" {
				return fmt.Errorf("provider %s needs an api_endpoint", p.ID)
			}
		case types.ProviderKindSimulation:
		default:
			return fmt.Errorf("provider %s has unknown kind %q", p.ID, p.Kind)
		}

		for _, ct := range p.SupportedCheckTypes {
			if !types.CheckType(ct).Valid() {
				return fmt.Errorf("provider %s lists unknown check type %q", p.ID, ct)
			}
		}
	}

	for _, r := range f.Requirements {
		if r.OpportunityID == "" || !r.CheckType.Valid() {
			return fmt.Errorf("requirement %q needs an opportunity_id and a known check_type", r.ID)
		}
	}

	return nil
}
