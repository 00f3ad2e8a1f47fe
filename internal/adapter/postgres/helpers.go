package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/AppHub/internal/domain"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// pgTextArray converts a string slice to a pgx-compatible text array.
// nil slices become empty arrays to avoid SQL NULL.
func pgTextArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// storeErr wraps a failed database call so callers can match
// domain.ErrStoreUnavailable and still inspect the driver error. Unique
// violations map to domain.ErrConflict instead.
func storeErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrStoreUnavailable, err)
}

// notFoundWrap checks whether err is pgx.ErrNoRows (or a malformed id, which
// cannot match any row) and, if so, wraps domain.ErrNotFound with the given
// message. Otherwise it wraps the original error as a store failure.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return storeErr(err, "%s", msg)
}

// execExpectOne verifies that an Exec affected exactly one row. If not
// (and err is nil), it returns domain.ErrNotFound with the given message.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return notFoundWrap(err, format, args...)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrNotFound)
	}
	return nil
}

// isUniqueViolation reports a 23505 error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isInvalidText reports a 22P02 error, raised when a non-UUID string is
// compared against a UUID column.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// collect scans every row with scan and returns the results.
func collect[T any](rows pgx.Rows, scan func(scannable) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
