// Package pgutil holds the pgx plumbing shared by the Postgres repositories.
package pgutil

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-blog/pkg/corerr"
)

// DBTX is an interface that allows us to use either a connection pool, a
// single connection or a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// InTx runs fn in a transaction on db. The transaction is committed when fn
// returns nil and rolled back otherwise. Errors are classified for op.
func InTx(ctx context.Context, db DBTX, op string, fn func(pgx.Tx) error) error {
	if err := pgx.BeginFunc(ctx, db, fn); err != nil {
		return Classify(op, err)
	}
	return nil
}

// Classify maps a pgx error onto the corerr taxonomy. Errors that already
// carry a corerr sentinel are passed through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{corerr.ErrNotFound, corerr.ErrConflict, corerr.ErrInvalidInput, corerr.ErrStorageUnavailable} {
		if errors.Is(err, kind) {
			return err
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, corerr.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w (constraint %s)", op, corerr.ErrConflict, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record: %w", op, corerr.ErrNotFound)
		case "23502", "23514", "22001": // not_null, check, string_data_right_truncation
			return fmt.Errorf("%s: %w: %s", op, corerr.ErrInvalidInput, pgErr.Message)
		case "40001", "40P01", "55P03", "57014", "53300", "57P01", "08000", "08003", "08006":
			return fmt.Errorf("%s: %w", op, corerr.Unavailable(err))
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required: %w", op, err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s): %w", op, pgErr.Message, pgErr.Code, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w", op, corerr.Unavailable(err))
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%s: %w", op, corerr.Unavailable(err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w", op, corerr.Unavailable(err))
	}

	return fmt.Errorf("database error in %s: %w", op, err)
}
