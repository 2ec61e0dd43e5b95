package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestRefinedSentinelsAreValidationErrors(t *testing.T) {
	dup := fmt.Errorf("%w: term 1 in year 24", ErrDuplicateIndex)
	anchor := fmt.Errorf("%w: 2025-10-14", ErrInvalidAnchor)

	assert.True(t, IsValidation(dup))
	assert.True(t, errors.Is(dup, ErrDuplicateIndex))
	assert.False(t, errors.Is(dup, ErrInvalidAnchor))
	assert.True(t, IsValidation(anchor))
	assert.False(t, IsNotFound(anchor))
}

func TestFromDB(t *testing.T) {
	assert.Nil(t, FromDB(nil, "term"))
	assert.True(t, IsNotFound(FromDB(gorm.ErrRecordNotFound, "term 7")))
	assert.ErrorIs(t, FromDB(gorm.ErrDuplicatedKey, "x"), ErrConflict)
	assert.ErrorIs(t, FromDB(&pgconn.PgError{Code: "23505"}, "x"), ErrConflict)
	assert.True(t, IsValidation(FromDB(&pgconn.PgError{Code: "23503", ConstraintName: "fk"}, "x")))

	other := errors.New("boom")
	assert.Equal(t, other, FromDB(other, "x"))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, fiber.StatusBadRequest, HTTPStatus(Validation("bad")))
	assert.Equal(t, fiber.StatusBadRequest, HTTPStatus(ErrInvalidAnchor))
	assert.Equal(t, fiber.StatusNotFound, HTTPStatus(NotFound("student %d", 1)))
	assert.Equal(t, fiber.StatusBadGateway, HTTPStatus(Ledger("create invoice", errors.New("429"))))
	assert.Equal(t, fiber.StatusInternalServerError, HTTPStatus(errors.New("x")))
}
