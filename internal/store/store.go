package store

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// uniqueConstraint returns the constraint name when err is a unique
// violation.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// buildUpdateClause creates the SET clause for ON CONFLICT DO UPDATE
// e.g., "name = EXCLUDED.name, kind = EXCLUDED.kind, ..."
func buildUpdateClause(fields map[string]any) string {
	var clause string
	first := true
	for field := range fields {
		if !first {
			clause += ", "
		}
		clause += fmt.Sprintf("%s = EXCLUDED.%s", field, field)
		first = false
	}
	return clause
}
