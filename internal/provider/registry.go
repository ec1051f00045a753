package provider

import (
	"fmt"
	"net/http"
	"sort"

	"vetting/pkg/types"
)

// Registry holds the configured provider profiles and the adapter bound to
// each one. It is built once at startup and read-only afterwards.
type Registry struct {
	providers  []*types.Provider
	byID       map[string]*types.Provider
	adapters   map[string]Adapter
	simulation *SimulationAdapter
}

func NewRegistry(simulation *SimulationAdapter) *Registry {
	return &Registry{
		byID:       make(map[string]*types.Provider),
		adapters:   make(map[string]Adapter),
		simulation: simulation,
	}
}

// BuildRegistry binds an adapter to every provider according to its kind.
func BuildRegistry(providers []*types.Provider, httpClient *http.Client, simulation *SimulationAdapter) (*Registry, error) {
	registry := NewRegistry(simulation)

	for _, p := range providers {
		adapter, err := newAdapter(p, httpClient, simulation)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p, adapter); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func newAdapter(p *types.Provider, httpClient *http.Client, simulation *SimulationAdapter) (Adapter, error) {
	switch p.Kind {
	case types.ProviderKindCheckr:
		return NewCheckrAdapter(p, httpClient), nil
	case types.ProviderKindSterling:
		return NewSterlingAdapter(p, httpClient), nil
	case types.ProviderKindSimulation:
		return simulation, nil
	}
	return nil, fmt.Errorf("provider %s has unknown kind %q", p.ID, p.Kind)
}

// Register binds adapter to provider p. The adapter kind must match the
// provider kind, so a real integration can never be served by the
// simulation adapter.
func (r *Registry) Register(p *types.Provider, adapter Adapter) error {
	if _, exists := r.byID[p.ID]; exists {
		return fmt.Errorf("provider %s already registered", p.ID)
	}
	if adapter == nil {
		return fmt.Errorf("provider %s has no adapter", p.ID)
	}
	if adapter.Kind() != p.Kind {
		return fmt.Errorf("provider %s is %s but adapter is %s", p.ID, p.Kind, adapter.Kind())
	}

	r.byID[p.ID] = p
	r.adapters[p.ID] = adapter
	r.providers = append(r.providers, p)
	sort.SliceStable(r.providers, func(i, j int) bool {
		if r.providers[i].Priority != r.providers[j].Priority {
			return r.providers[i].Priority < r.providers[j].Priority
		}
		return r.providers[i].ID < r.providers[j].ID
	})

	return nil
}

// Resolve returns the explicitly requested active provider, or the first
// active provider offering checkType when explicitID is empty.
func (r *Registry) Resolve(explicitID string, checkType types.CheckType) (*types.Provider, error) {
	if explicitID != "" {
		p, ok := r.byID[explicitID]
		if !ok || !p.IsActive {
			return nil, fmt.Errorf("%w: provider %s is not configured or inactive", types.ErrNoActiveProvider, explicitID)
		}
		if !p.Supports(checkType) {
			return nil, fmt.Errorf("%w: provider %s does not offer %s", types.ErrUnsupportedCheckType, p.ID, checkType)
		}
		return p, nil
	}

	for _, p := range r.providers {
		if p.IsActive && p.Supports(checkType) {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w for check type %s", types.ErrNoActiveProvider, checkType)
}

func (r *Registry) Provider(id string) (*types.Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Registry) Adapter(providerID string) (Adapter, error) {
	adapter, ok := r.adapters[providerID]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %s", providerID)
	}
	return adapter, nil
}

// Simulation returns the degraded-mode fallback adapter.
func (r *Registry) Simulation() *SimulationAdapter {
	return r.simulation
}

func (r *Registry) Providers() []*types.Provider {
	out := make([]*types.Provider, len(r.providers))
	copy(out, r.providers)
	return out
}
