// Package corerr defines the error taxonomy shared by the media store, the
// engagement ledger and the tag catalog.
//
// Every error returned by those packages wraps exactly one of the sentinels
// below, so callers can tell "already exists" from "not found" from
// "try again later" with errors.Is.
package corerr

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the record or blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. a duplicate object name.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the caller supplied empty, oversized or malformed input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable indicates a transient failure of a blob store or
	// metadata store. Operations failing with it are safe to retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// IsRetryable reports whether err is a transient failure that may succeed
// when retried with the same input. Conflict and InvalidInput never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound) {
		return false
	}
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// Unavailable wraps err so that it matches ErrStorageUnavailable while
// keeping the original cause reachable through errors.Is/As.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return &wrapped{kind: ErrStorageUnavailable, err: err}
}

// Invalid returns an ErrInvalidInput carrying msg.
func Invalid(msg string) error {
	return &wrapped{kind: ErrInvalidInput, err: errors.New(msg)}
}

type wrapped struct {
	kind error
	err  error
}

func (w *wrapped) Error() string {
	return w.kind.Error() + ": " + w.err.Error()
}

func (w *wrapped) Unwrap() []error {
	return []error{w.kind, w.err}
}
