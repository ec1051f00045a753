package store

import (
	"context"
	"fmt"
	"time"

	"vetting/internal/utils"
	"vetting/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const providerTableName = "vetting.providers"

var providerColumns = utils.StructTagValues(types.Provider{})

type ProviderRepository struct {
	pool *pgxpool.Pool
}

func NewProviderRepository(pool *pgxpool.Pool) *ProviderRepository {
	return &ProviderRepository{pool: pool}
}

// AllProviders returns every configured provider, active or not.
func (r *ProviderRepository) AllProviders(ctx context.Context) ([]*types.Provider, error) {
	query, args, err := psql().
		Select(providerColumns...).
		From(providerTableName).
		OrderBy("priority ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate providers query: %w", err)
	}

	var providers []*types.Provider
	err = pgxscan.Select(ctx, r.pool, &providers, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch providers: %w", err)
	}

	return providers, nil
}

func (r *ProviderRepository) UpsertProvider(ctx context.Context, provider *types.Provider) error {
	now := time.Now()
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}
	provider.UpdatedAt = now

	// Exclude id and created_at from updates
	updateMap := utils.StructToMap(provider, "id", "created_at")

	query, args, err := psql().
		Insert(providerTableName).
		SetMap(utils.StructToMap(provider)).
		Suffix("ON CONFLICT (id) DO UPDATE SET " + buildUpdateClause(updateMap)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert provider query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}

	return nil
}

// DeactivateProvider keeps the row so historical checks still resolve their
// provider, but removes it from resolution.
func (r *ProviderRepository) DeactivateProvider(ctx context.Context, id string) error {
	query, args, err := psql().
		Update(providerTableName).
		Set("is_active", false).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate deactivate provider query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to deactivate provider: %w", err)
	}

	return nil
}
