// Package apperror is the error taxonomy shared by services, controllers and the CLI.
//
// Services wrap one of the sentinels with fmt.Errorf("%w: ...") so callers can tell
// validation problems (reject, do not retry) from lookups that found nothing and from
// failures of the external ledger (retry later).
package apperror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrLedger     = errors.New("ledger error")

	ErrDuplicateIndex = fmt.Errorf("%w: duplicate index", ErrValidation)
	ErrInvalidAnchor  = fmt.Errorf("%w: anchor date is not a Monday", ErrValidation)
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func Ledger(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrLedger, op, err)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }

// FromDB maps driver/gorm errors onto the taxonomy. notFound describes the
// missing entity when the lookup came back empty.
func FromDB(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("%s", notFound)
	}
	if IsDuplicate(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return Validation("reference not found (%s)", pgErr.ConstraintName)
	}
	return err
}

// IsDuplicate reports unique-constraint violations from postgres or sqlite.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrLedger):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
