// Package memory implements the repository methods over process memory. It
// backs tests and `serve --in-memory`.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vetting/internal/utils"
	"vetting/pkg/types"
)

type checkKey struct {
	volunteerID string
	checkType   types.CheckType
}

type externalKey struct {
	providerID string
	externalID string
}

type Store struct {
	mu sync.RWMutex

	checks       map[string]*types.BackgroundCheck
	events       map[string][]*types.CheckEvent
	volunteers   map[string]*types.Volunteer
	providers    map[string]*types.Provider
	requirements map[string][]*types.Requirement

	now func() time.Time
}

func New() *Store {
	return &Store{
		checks:       make(map[string]*types.BackgroundCheck),
		events:       make(map[string][]*types.CheckEvent),
		volunteers:   make(map[string]*types.Volunteer),
		providers:    make(map[string]*types.Provider),
		requirements: make(map[string][]*types.Requirement),
		now:          time.Now,
	}
}

// WithClock sets the clock used for created/updated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Check(_ context.Context, checkID string) (*types.BackgroundCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	check, ok := s.checks[checkID]
	if !ok {
		return nil, types.ErrCheckNotFound
	}
	return cloneCheck(check), nil
}

func (s *Store) ActiveCheck(_ context.Context, volunteerID string, checkType types.CheckType) (*types.BackgroundCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *types.BackgroundCheck
	for _, check := range s.checks {
		if check.VolunteerID != volunteerID || check.CheckType != checkType || !isActive(check.Status) {
			continue
		}
		if found == nil || check.RequestedAt.After(found.RequestedAt) {
			found = check
		}
	}
	if found == nil {
		return nil, types.ErrCheckNotFound
	}
	return cloneCheck(found), nil
}

func (s *Store) CheckByExternalID(_ context.Context, providerID, externalID string) (*types.BackgroundCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, check := range s.checks {
		if check.ProviderID == providerID && utils.PtrString(check.ExternalID) == externalID && externalID != "" {
			return cloneCheck(check), nil
		}
	}
	return nil, types.ErrCheckNotFound
}

func (s *Store) ChecksByVolunteer(_ context.Context, volunteerID string, statuses ...types.CheckStatus) ([]*types.BackgroundCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(func(c *types.BackgroundCheck) bool {
		return c.VolunteerID == volunteerID && (len(statuses) == 0 || hasStatus(statuses, c.Status))
	})
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].CompletedAt, out[j].CompletedAt
		switch {
		case ci != nil && cj != nil && !ci.Equal(*cj):
			return ci.After(*cj)
		case ci != nil && cj == nil:
			return true
		case ci == nil && cj != nil:
			return false
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

func (s *Store) ChecksByStatus(_ context.Context, statuses ...types.CheckStatus) ([]*types.BackgroundCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(func(c *types.BackgroundCheck) bool {
		return hasStatus(statuses, c.Status)
	})
	sortByRequested(out)
	return out, nil
}

func (s *Store) RenewalCandidates(_ context.Context) ([]*types.BackgroundCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(func(c *types.BackgroundCheck) bool {
		return c.Status == types.CheckStatusApproved && c.RenewalReminder && c.ExpiresAt != nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
	})
	return out, nil
}

func (s *Store) UnnoticedExpirations(_ context.Context) ([]*types.BackgroundCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(func(c *types.BackgroundCheck) bool {
		return c.Status == types.CheckStatusExpired && c.RenewalReminder && c.ExpiresAt != nil &&
			!types.HasEvent(s.events[c.ID], types.CheckEventNotified, string(types.NotificationExpired))
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
	})
	return out, nil
}

func (s *Store) StaleChecks(_ context.Context, requestedBefore time.Time) ([]*types.BackgroundCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(func(c *types.BackgroundCheck) bool {
		waiting := c.Status == types.CheckStatusPending || c.Status == types.CheckStatusInProgress
		return waiting && c.RequestedAt.Before(requestedBefore)
	})
	sortByRequested(out)
	return out, nil
}

func (s *Store) CreateCheck(_ context.Context, check *types.BackgroundCheck, events ...*types.CheckEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if check.ID == "" {
		check.ID = utils.PrefixedID("chk")
	}
	if _, exists := s.checks[check.ID]; exists {
		return fmt.Errorf("check %s already exists", check.ID)
	}
	if err := s.checkUnique(check); err != nil {
		return fmt.Errorf("failed to create check: %w", err)
	}

	now := s.now()
	check.CreatedAt = now
	check.UpdatedAt = now

	s.checks[check.ID] = cloneCheck(check)
	s.appendEvents(check.ID, check.Status, events)
	return nil
}

func (s *Store) UpdateCheck(_ context.Context, check *types.BackgroundCheck, expected types.CheckStatus, events ...*types.CheckEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.checks[check.ID]
	if !ok || current.Status != expected {
		return fmt.Errorf("check %s no longer %s: %w", check.ID, expected, types.ErrStaleCheck)
	}
	if err := s.checkUnique(check); err != nil {
		return fmt.Errorf("failed to update check: %w", err)
	}

	check.CreatedAt = current.CreatedAt
	check.UpdatedAt = s.now()

	s.checks[check.ID] = cloneCheck(check)
	s.appendEvents(check.ID, check.Status, events)
	return nil
}

func (s *Store) AppendEvents(_ context.Context, checkID string, events ...*types.CheckEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checks[checkID]; !ok {
		return types.ErrCheckNotFound
	}
	s.appendEvents(checkID, "", events)
	return nil
}

// ClaimEvent records a marker event unless one with the same kind and detail
// already exists for the check.
func (s *Store) ClaimEvent(_ context.Context, checkID string, event *types.CheckEvent) (bool, error) {
	if !event.Kind.IsMarker() {
		return false, fmt.Errorf("event kind %s cannot be claimed", event.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checks[checkID]; !ok {
		return false, types.ErrCheckNotFound
	}
	if types.HasEvent(s.events[checkID], event.Kind, event.Detail) {
		return false, nil
	}

	s.appendEvents(checkID, "", []*types.CheckEvent{event})
	return true, nil
}

func (s *Store) ReleaseEvent(_ context.Context, event *types.CheckEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.events[event.CheckID]
	for i, e := range stored {
		if e.ID == event.ID {
			s.events[event.CheckID] = append(stored[:i:i], stored[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) Events(_ context.Context, checkID string) ([]*types.CheckEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[checkID]
	out := make([]*types.CheckEvent, len(stored))
	for i, e := range stored {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *Store) Volunteer(_ context.Context, volunteerID string) (*types.Volunteer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.volunteers[volunteerID]
	if !ok {
		return nil, types.ErrVolunteerNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *Store) UpsertVolunteer(_ context.Context, volunteer *types.Volunteer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *volunteer
	s.volunteers[volunteer.ID] = &cp
	return nil
}

func (s *Store) AllProviders(_ context.Context) ([]*types.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		cp := *p
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpsertProvider(_ context.Context, provider *types.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.providers[provider.ID]; ok {
		provider.CreatedAt = existing.CreatedAt
	} else if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}
	provider.UpdatedAt = now

	cp := *provider
	s.providers[provider.ID] = &cp
	return nil
}

func (s *Store) DeactivateProvider(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.providers[id]; ok {
		p.IsActive = false
		p.UpdatedAt = s.now()
	}
	return nil
}

func (s *Store) RequirementsByOpportunity(_ context.Context, opportunityID string) ([]*types.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.requirements[opportunityID]
	out := make([]*types.Requirement, len(stored))
	for i, r := range stored {
		cp := *r
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CheckType < out[j].CheckType
	})
	return out, nil
}

func (s *Store) UpsertRequirement(_ context.Context, requirement *types.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requirement.ID == "" {
		requirement.ID = utils.PrefixedID("req")
	}
	if requirement.CreatedAt.IsZero() {
		requirement.CreatedAt = s.now()
	}

	cp := *requirement
	list := s.requirements[requirement.OpportunityID]
	for i, existing := range list {
		if existing.CheckType == requirement.CheckType {
			cp.ID = existing.ID
			cp.CreatedAt = existing.CreatedAt
			list[i] = &cp
			return nil
		}
	}
	s.requirements[requirement.OpportunityID] = append(list, &cp)
	return nil
}

// checkUnique enforces the same unique indexes as the database schema.
func (s *Store) checkUnique(check *types.BackgroundCheck) error {
	for id, other := range s.checks {
		if id == check.ID {
			continue
		}
		if isActive(check.Status) && isActive(other.Status) &&
			(checkKey{other.VolunteerID, other.CheckType}) == (checkKey{check.VolunteerID, check.CheckType}) {
			return types.ErrActiveCheckExists
		}
		if check.ExternalID != nil && other.ExternalID != nil &&
			(externalKey{other.ProviderID, *other.ExternalID}) == (externalKey{check.ProviderID, *check.ExternalID}) {
			return types.ErrExternalIDTaken
		}
	}
	return nil
}

func (s *Store) appendEvents(checkID string, status types.CheckStatus, events []*types.CheckEvent) {
	now := s.now()
	for _, event := range events {
		if event.ID == "" {
			event.ID = utils.PrefixedID("evt")
		}
		event.CheckID = checkID
		if event.Status == "" {
			event.Status = status
		}
		if event.CreatedAt.IsZero() {
			event.CreatedAt = now
		}
		cp := *event
		s.events[checkID] = append(s.events[checkID], &cp)
	}
}

func (s *Store) filter(keep func(*types.BackgroundCheck) bool) []*types.BackgroundCheck {
	out := make([]*types.BackgroundCheck, 0)
	for _, check := range s.checks {
		if keep(check) {
			out = append(out, cloneCheck(check))
		}
	}
	return out
}

func sortByRequested(checks []*types.BackgroundCheck) {
	sort.SliceStable(checks, func(i, j int) bool {
		if !checks[i].RequestedAt.Equal(checks[j].RequestedAt) {
			return checks[i].RequestedAt.Before(checks[j].RequestedAt)
		}
		return checks[i].ID < checks[j].ID
	})
}

func isActive(status types.CheckStatus) bool {
	return hasStatus(types.ActiveCheckStatuses, status)
}

func hasStatus(statuses []types.CheckStatus, status types.CheckStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func cloneCheck(c *types.BackgroundCheck) *types.BackgroundCheck {
	cp := *c
	cp.Events = nil
	if c.Results != nil {
		results := *c.Results
		results.Findings = append([]types.Finding(nil), c.Results.Findings...)
		cp.Results = &results
	}
	return &cp
}
