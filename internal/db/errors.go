package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"basehub/internal/domain"
)

// classifyPgError maps Postgres SQLSTATE classes onto the domain error
// taxonomy so handlers answer with the right status instead of a blanket 500:
//
//	23505          unique violation       -> ConflictError
//	22***, 23***   data / constraint      -> ValidationError
//	42***          syntax / access rule   -> ValidationError
//
// Anything else passes through unchanged and surfaces as an internal error.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code == "23505" {
		return domain.ErrConflict("%s", pgErr.Message)
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "22"),
		strings.HasPrefix(pgErr.Code, "23"),
		strings.HasPrefix(pgErr.Code, "42"):
		return domain.ErrValidation("%s", pgErr.Message)
	}
	return err
}
