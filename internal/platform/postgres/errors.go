package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lectio/lectio-api/internal/store"
)

// PostgreSQL error codes we discriminate on.
const (
	pgUniqueViolationCode     = "23505"
	pgForeignKeyViolationCode = "23503"
)

// mapError translates low-level database errors into store sentinel errors,
// keeping the original as the wrapped cause. notFound supplies the
// entity-specific sentinel for sql.ErrNoRows.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolationCode:
			return fmt.Errorf("%w: %s", store.ErrInvalidEntity, pgErr.Detail)
		case pgForeignKeyViolationCode:
			return fmt.Errorf("%w: %s", store.ErrInvalidEntity, pgErr.Detail)
		}
	}

	return err
}
