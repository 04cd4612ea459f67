// Package pg persists users, tokens and commerce entities in postgres. It is
// the production counterpart of the in-memory stores and satisfies the same
// interfaces, so the rest of the service never branches on the backend.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"paygate/internal/auth"
	"paygate/internal/commerce"
)

type Store struct {
	db *sql.DB
}

var (
	_ auth.Store       = (*Store)(nil)
	_ commerce.Service = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// pg error class 23 is integrity violation; the relevant codes map onto the
// domain sentinels so handlers never see driver errors.
func mapErr(err error, notFound, conflict, invalid error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return conflict
		case "23502", "23514": // not_null_violation, check_violation
			return invalid
		}
	}
	return err
}

func authErr(err error) error {
	return mapErr(err, auth.ErrNotFound, auth.ErrConflict, auth.ErrInvalidInput)
}

func commerceErr(err error) error {
	return mapErr(err, commerce.ErrNotFound, commerce.ErrConflict, commerce.ErrInvalidInput)
}
