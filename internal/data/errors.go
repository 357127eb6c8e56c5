package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrDuplicateIdentifier is returned when a batch create collides with an
	// identifier already stored in the same collection.
	ErrDuplicateIdentifier = errors.New("identifier already exists in collection")

	// ErrUserIDRequired is returned when a repository call omits the user id.
	ErrUserIDRequired = errors.New("user_id is required")

	// ErrInvalidRelation is returned for unknown collection names.
	ErrInvalidRelation = errors.New("invalid relation collection")
)

// isUniqueViolation reports whether err is a Postgres unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
