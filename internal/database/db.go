package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maxmove/waitlist-api/internal/models"
)

// MapPostgresError normalizes pgx errors into the sentinel taxonomy before
// they reach the service layer. Unique violations are disambiguated by the
// constraint name so the orchestrator can tell an email race from a referral
// code collision.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == "waitlist_signups_referral_code_key" {
				return models.ErrDuplicateCode
			}
			return models.ErrDuplicateEmail
		case "23503": // foreign_key_violation
			return models.ErrBadRequest
		case "23502": // not_null_violation
			return models.ErrBadRequest
		case "23514": // check_violation
			return models.ErrBadRequest
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return models.ErrStoreUnavailable
	}

	return err
}
