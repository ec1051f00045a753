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
)

const checkEventsTableName = "vetting.background_check_events"

var checkEventColumns = utils.StructTagValues(types.CheckEvent{})

// AppendEvents records audit events without touching the check row.
func (r *CheckRepository) AppendEvents(ctx context.Context, checkID string, events ...*types.CheckEvent) error {
	if len(events) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return insertEvents(ctx, tx, checkID, "", events)
	})
}

// Events returns a check's audit trail in chronological order.
func (r *CheckRepository) Events(ctx context.Context, checkID string) ([]*types.CheckEvent, error) {
	query, args, err := psql().
		Select(checkEventColumns...).
		From(checkEventsTableName).
		Where(sq.Eq{"check_id": checkID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate check events query: %w", err)
	}

	var events []*types.CheckEvent
	err = pgxscan.Select(ctx, r.pool, &events, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to get check events")
	}

	return events, nil
}

// ClaimEvent records a marker event unless one with the same kind and detail
// already exists for the check. It reports whether this call recorded it.
func (r *CheckRepository) ClaimEvent(ctx context.Context, checkID string, event *types.CheckEvent) (bool, error) {
	if !event.Kind.IsMarker() {
		return false, fmt.Errorf("event kind %s cannot be claimed", event.Kind)
	}
	if event.ID == "" {
		event.ID = utils.PrefixedID("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CheckID = checkID

	query, args, err := psql().
		Insert(checkEventsTableName).
		Columns(checkEventColumns...).
		Values(event.ID, event.CheckID, event.Kind, event.Status, event.Detail, event.CreatedAt).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to generate claim event query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, utils.ErrorWrapOrNil(err, "failed to claim check event")
	}

	return tag.RowsAffected() == 1, nil
}

// ReleaseEvent removes a claimed marker so the side effect can be retried.
func (r *CheckRepository) ReleaseEvent(ctx context.Context, event *types.CheckEvent) error {
	query, args, err := psql().
		Delete(checkEventsTableName).
		Where(sq.Eq{"id": event.ID, "check_id": event.CheckID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate release event query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to release check event")
}

func insertEvents(ctx context.Context, tx pgx.Tx, checkID string, status types.CheckStatus, events []*types.CheckEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now()
	insert := psql().
		Insert(checkEventsTableName).
		Columns(checkEventColumns...)

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
		insert = insert.Values(event.ID, event.CheckID, event.Kind, event.Status, event.Detail, event.CreatedAt)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert check events query: %w", err)
	}

	_, err = tx.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to record check events")
}
