package store

import (
	"context"
	"fmt"

	"vetting/internal/utils"
	"vetting/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const volunteerTableName = "vetting.volunteers"

var volunteerColumns = utils.StructTagValues(types.Volunteer{})

// VolunteerRepository reads volunteer identity and contact fields. Rows are
// written by the people directory, never by this service.
type VolunteerRepository struct {
	pool *pgxpool.Pool
}

func NewVolunteerRepository(pool *pgxpool.Pool) *VolunteerRepository {
	return &VolunteerRepository{pool: pool}
}

func (r *VolunteerRepository) Volunteer(ctx context.Context, volunteerID string) (*types.Volunteer, error) {
	query, args, err := psql().
		Select(volunteerColumns...).
		From(volunteerTableName).
		Where(sq.Eq{"id": volunteerID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate volunteer query: %w", err)
	}

	var volunteer types.Volunteer
	err = pgxscan.Get(ctx, r.pool, &volunteer, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrVolunteerNotFound
		}
		return nil, fmt.Errorf("failed to fetch volunteer: %w", err)
	}

	return &volunteer, nil
}

// UpsertVolunteer is used by the fixture seeder for local environments.
func (r *VolunteerRepository) UpsertVolunteer(ctx context.Context, volunteer *types.Volunteer) error {
	volunteerMap := utils.StructToMap(volunteer)

	query, args, err := psql().
		Insert(volunteerTableName).
		SetMap(volunteerMap).
		Suffix("ON CONFLICT (id) DO UPDATE SET " + buildUpdateClause(utils.StructToMap(volunteer, "id"))).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert volunteer query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert volunteer: %w", err)
	}

	return nil
}
