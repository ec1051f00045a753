package store

import (
	"context"
	"fmt"
	"time"

	"vetting/internal/utils"
	"vetting/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	checkTableName = "vetting.background_checks"

	activeCheckConstraint = "background_checks_active_volunteer_check_type_key"
	externalIDConstraint  = "background_checks_provider_external_id_key"
)

var checkColumns = utils.StructTagValues(types.BackgroundCheck{})

type CheckRepository struct {
	pool *pgxpool.Pool
}

func NewCheckRepository(pool *pgxpool.Pool) *CheckRepository {
	return &CheckRepository{pool: pool}
}

func (r *CheckRepository) Check(ctx context.Context, checkID string) (*types.BackgroundCheck, error) {
	query, args, err := psql().
		Select(checkColumns...).
		From(checkTableName).
		Where(sq.Eq{"id": checkID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate check query: %w", err)
	}

	return r.getOne(ctx, r.pool, query, args...)
}

// ActiveCheck returns the non-terminal check for a volunteer and check type.
func (r *CheckRepository) ActiveCheck(ctx context.Context, volunteerID string, checkType types.CheckType) (*types.BackgroundCheck, error) {
	query, args, err := psql().
		Select(checkColumns...).
		From(checkTableName).
		Where(sq.Eq{
			"volunteer_id": volunteerID,
			"check_type":   checkType,
			"status":       statusStrings(types.ActiveCheckStatuses),
		}).
		OrderBy("requested_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate active check query: %w", err)
	}

	return r.getOne(ctx, r.pool, query, args...)
}

func (r *CheckRepository) CheckByExternalID(ctx context.Context, providerID, externalID string) (*types.BackgroundCheck, error) {
	query, args, err := psql().
		Select(checkColumns...).
		From(checkTableName).
		Where(sq.Eq{"provider_id": providerID, "external_id": externalID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate external id query: %w", err)
	}

	return r.getOne(ctx, r.pool, query, args...)
}

func (r *CheckRepository) ChecksByVolunteer(ctx context.Context, volunteerID string, statuses ...types.CheckStatus) ([]*types.BackgroundCheck, error) {
	where := sq.Eq{"volunteer_id": volunteerID}
	if len(statuses) > 0 {
		where["status"] = statusStrings(statuses)
	}

	query, args, err := psql().
		Select(checkColumns...).
		From(checkTableName).
		Where(where).
		OrderBy("completed_at DESC NULLS LAST", "requested_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate volunteer checks query: %w", err)
	}

	return r.getMany(ctx, query, args...)
}

func (r *CheckRepository) ChecksByStatus(ctx context.Context, statuses ...types.CheckStatus) ([]*types.BackgroundCheck, error) {
	query, args, err := psql().
		Select(checkColumns...).
		From(checkTableName).
		Where(sq.Eq{"status": statusStrings(statuses)}).
		OrderBy("requested_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate checks by status query: %w", err)
	}

	return r.getMany(ctx, query, args...)
}

// RenewalCandidates returns approved checks that opted into expiration
// tracking.
func (r *CheckRepository) RenewalCandidates(ctx context.Context) ([]*types.BackgroundCheck, error) {
	query, args, err := psql().
		Select(checkColumns...).
		From(checkTableName).
		Where(sq.Eq{"status": types.CheckStatusApproved, "renewal_reminder": true}).
		Where(sq.NotEq{"expires_at": nil}).
		OrderBy("expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate renewal candidates query: %w", err)
	}

	return r.getMany(ctx, query, args...)
}

// UnnoticedExpirations returns expired checks whose expiration notice has not
// been recorded.
func (r *CheckRepository) UnnoticedExpirations(ctx context.Context) ([]*types.BackgroundCheck, error) {
	query, args, err := psql().
		Select(checkColumns...).
		From(checkTableName).
		Where(sq.Eq{"status": types.CheckStatusExpired, "renewal_reminder": true}).
		Where(sq.Expr(
			"NOT EXISTS (SELECT 1 FROM "+checkEventsTableName+" e WHERE e.check_id = background_checks.id AND e.kind = ? AND e.detail = ?)",
			types.CheckEventNotified, string(types.NotificationExpired),
		)).
		OrderBy("expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate unnoticed expirations query: %w", err)
	}

	return r.getMany(ctx, query, args...)
}

// StaleChecks returns checks still waiting on a provider that were requested
// before the cutoff.
func (r *CheckRepository) StaleChecks(ctx context.Context, requestedBefore time.Time) ([]*types.BackgroundCheck, error) {
	query, args, err := psql().
		Select(checkColumns...).
		From(checkTableName).
		Where(sq.Eq{"status": []string{string(types.CheckStatusPending), string(types.CheckStatusInProgress)}}).
		Where(sq.Lt{"requested_at": requestedBefore}).
		OrderBy("requested_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate stale checks query: %w", err)
	}

	return r.getMany(ctx, query, args...)
}

// CreateCheck inserts a new check together with its opening events.
func (r *CheckRepository) CreateCheck(ctx context.Context, check *types.BackgroundCheck, events ...*types.CheckEvent) error {
	now := time.Now()
	if check.ID == "" {
		check.ID = utils.PrefixedID("chk")
	}
	check.CreatedAt = now
	check.UpdatedAt = now

	query, args, err := psql().
		Insert(checkTableName).
		SetMap(utils.StructToMap(check)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert check query: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return translateWriteError(err, "failed to create check")
		}
		return insertEvents(ctx, tx, check.ID, check.Status, events)
	})
}

// UpdateCheck writes check only if the stored status still equals expected,
// and appends events in the same transaction.
func (r *CheckRepository) UpdateCheck(ctx context.Context, check *types.BackgroundCheck, expected types.CheckStatus, events ...*types.CheckEvent) error {
	check.UpdatedAt = time.Now()

	query, args, err := psql().
		Update(checkTableName).
		SetMap(utils.StructToMap(check, "id", "created_at")).
		Where(sq.Eq{"id": check.ID, "status": expected}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update check query for check %s: %w", check.ID, err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return translateWriteError(err, "failed to update check")
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("check %s no longer %s: %w", check.ID, expected, types.ErrStaleCheck)
		}
		return insertEvents(ctx, tx, check.ID, check.Status, events)
	})
}

func (r *CheckRepository) getOne(ctx context.Context, q pgxscan.Querier, query string, args ...any) (*types.BackgroundCheck, error) {
	var check = new(types.BackgroundCheck)
	err := pgxscan.Get(ctx, q, check, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrCheckNotFound
		}
		return nil, fmt.Errorf("failed to fetch check: %w", err)
	}

	return check, nil
}

func (r *CheckRepository) getMany(ctx context.Context, query string, args ...any) ([]*types.BackgroundCheck, error) {
	var checks = make([]*types.BackgroundCheck, 0)
	err := pgxscan.Select(ctx, r.pool, &checks, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checks: %w", err)
	}

	return checks, nil
}

func translateWriteError(err error, msg string) error {
	if constraint, ok := uniqueConstraint(err); ok {
		switch constraint {
		case activeCheckConstraint:
			return fmt.Errorf("%s: %w", msg, types.ErrActiveCheckExists)
		case externalIDConstraint:
			return fmt.Errorf("%s: %w", msg, types.ErrExternalIDTaken)
		}
	}
	return utils.ErrorWrapOrNil(err, msg)
}

func statusStrings(statuses []types.CheckStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
