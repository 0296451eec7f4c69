package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

// NewPostgreSQL opens a pooled PostgreSQL connection through the pgx stdlib driver.
// Queries keep MySQL-style "?" placeholders and are rebound before execution.
func NewPostgreSQL(cfg Config) (Database, error) {
	return openSQL("pgx", cfg, placeholderDollar)
}

func pgUniqueViolationKey(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
