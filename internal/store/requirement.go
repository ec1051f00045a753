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

const requirementTableName = "vetting.opportunity_check_requirements"

var requirementColumns = utils.StructTagValues(types.Requirement{})

type RequirementRepository struct {
	pool *pgxpool.Pool
}

func NewRequirementRepository(pool *pgxpool.Pool) *RequirementRepository {
	return &RequirementRepository{pool: pool}
}

// RequirementsByOpportunity returns the check requirements declared for an
// opportunity.
func (r *RequirementRepository) RequirementsByOpportunity(ctx context.Context, opportunityID string) ([]*types.Requirement, error) {
	query, args, err := psql().
		Select(requirementColumns...).
		From(requirementTableName).
		Where(sq.Eq{"opportunity_id": opportunityID}).
		OrderBy("check_type ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate requirements query: %w", err)
	}

	var requirements []*types.Requirement
	err = pgxscan.Select(ctx, r.pool, &requirements, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch requirements: %w", err)
	}

	return requirements, nil
}

func (r *RequirementRepository) UpsertRequirement(ctx context.Context, requirement *types.Requirement) error {
	if requirement.CreatedAt.IsZero() {
		requirement.CreatedAt = time.Now()
	}

	query, args, err := psql().
		Insert(requirementTableName).
		SetMap(utils.StructToMap(requirement)).
		Suffix("ON CONFLICT (opportunity_id, check_type) DO UPDATE SET " +
			buildUpdateClause(utils.StructToMap(requirement, "id", "opportunity_id", "check_type", "created_at"))).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert requirement query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert requirement: %w", err)
	}

	return nil
}
