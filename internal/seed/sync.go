package seed

import (
	"context"
	"fmt"

	"vetting/internal/utils"
	"vetting/pkg/types"

	"github.com/sirupsen/logrus"
)

type ProviderRepository interface {
	AllProviders(ctx context.Context) ([]*types.Provider, error)
	UpsertProvider(ctx context.Context, provider *types.Provider) error
	DeactivateProvider(ctx context.Context, id string) error
}

type RequirementRepository interface {
	UpsertRequirement(ctx context.Context, requirement *types.Requirement) error
}

type VolunteerRepository interface {
	UpsertVolunteer(ctx context.Context, volunteer *types.Volunteer) error
}

// SyncProviders makes the providers table match the fixtures:
// - Inserts providers that don't exist
// - Updates providers that have changed
// - Deactivates providers no longer listed. Rows are kept because
// historical checks still reference them.
func SyncProviders(ctx context.Context, logger logrus.FieldLogger, repo ProviderRepository, providers []*types.Provider) error {
	listed := make(map[string]bool, len(providers))
	for _, p := range providers {
		listed[p.ID] = true
	}

	existing, err := repo.AllProviders(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch existing providers: %w", err)
	}

	deactivated := 0
	for _, p := range existing {
		if listed[p.ID] || !p.IsActive {
			continue
		}
		logger.WithField("provider_id", p.ID).Info("deactivating provider")
		if err := repo.DeactivateProvider(ctx, p.ID); err != nil {
			return fmt.Errorf("failed to deactivate provider %s: %w", p.ID, err)
		}
		deactivated++
	}

	for _, p := range providers {
		logger.WithFields(logrus.Fields{"provider_id": p.ID, "kind": p.Kind}).Info("upserting provider")
		if err := repo.UpsertProvider(ctx, p); err != nil {
			return fmt.Errorf("failed to upsert provider %s: %w", p.ID, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"upserted":    len(providers),
		"deactivated": deactivated,
	}).Info("provider sync complete")
	return nil
}

func SyncRequirements(ctx context.Context, logger logrus.FieldLogger, repo RequirementRepository, requirements []*types.Requirement) error {
	for _, r := range requirements {
		if r.ID == "" {
			r.ID = utils.PrefixedID("req")
		}
		if err := repo.UpsertRequirement(ctx, r); err != nil {
			return fmt.Errorf("failed to upsert requirement %s/%s: %w", r.OpportunityID, r.CheckType, err)
		}
	}

	logger.WithField("upserted", len(requirements)).Info("requirement sync complete")
	return nil
}

func SyncVolunteers(ctx context.Context, logger logrus.FieldLogger, repo VolunteerRepository, volunteers []*types.Volunteer) error {
	for _, v := range volunteers {
		if err := repo.UpsertVolunteer(ctx, v); err != nil {
			return fmt.Errorf("failed to upsert volunteer %s: %w", v.ID, err)
		}
	}

	logger.WithField("upserted", len(volunteers)).Info("volunteer sync complete")
	return nil
}

// Repositories groups the writers Apply needs.
type Repositories struct {
	Providers    ProviderRepository
	Requirements RequirementRepository
	Volunteers   VolunteerRepository
}

// Apply syncs every fixture section.
func Apply(ctx context.Context, logger logrus.FieldLogger, repos Repositories, f *Fixtures) error {
	if err := SyncProviders(ctx, logger, repos.Providers, f.Providers); err != nil {
		return err
	}
	if err := SyncRequirements(ctx, logger, repos.Requirements, f.Requirements); err != nil {
		return err
	}
	return SyncVolunteers(ctx, logger, repos.Volunteers, f.Volunteers)
}
