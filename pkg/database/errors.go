package database

import (
	"database/sql/driver"
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"github.com/syncstock/syncstock-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		if strings.Contains(pqErr.Message, "still referenced") || strings.Contains(pqErr.Detail, "is still referenced") {
			return errors.Conflict("record is still referenced by inventory records")
		}
		return errors.BadRequest("referenced record does not exist")

	// Invalid text representation (22P02), usually a malformed uuid filter
	case "22P02":
		return errors.BadRequest("malformed identifier")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// IsTransient reports whether err is a lock, deadlock, serialization or
// connection failure after which the whole transaction can be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "55P03", // lock_not_available
		"40P01", // deadlock_detected
		"40001", // serialization_failure
		"57014": // query_canceled (statement_timeout)
		return true
	}
	return pqErr.Code.Class() == "08"
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "balance cannot go negative",
		})

	case strings.Contains(constraint, "adjustment_type_valid"):
		return errors.Validation(map[string]string{
			"adjustment_type": "must be one of: remove, missing, damage, expired, sold",
		})

	case strings.Contains(constraint, "distinct_locations"):
		return errors.Validation(map[string]string{
			"to_location_id": "must differ from from_location_id",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "locations"):
		return "a location with this name already exists"
	case strings.Contains(constraint, "categories"):
		return "a category with this name already exists"
	default:
		return "a record with these values already exists"
	}
}
