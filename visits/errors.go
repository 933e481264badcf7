// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a referenced visit or restaurant doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when the input of an operation is rejected
	// before anything is written.
	ErrValidation = errors.New("validation error")

	// ErrBusy is returned once the store stayed busy for the whole retry budget.
	ErrBusy = errors.New("store busy")
)

// ErrorKind classifies an OpError.
type ErrorKind int

const (
	// KindUnknown is any failure not covered below.
	KindUnknown ErrorKind = iota
	// KindNotFound the referenced id didn't resolve.
	KindNotFound
	// KindValidation the input was rejected.
	KindValidation
	// KindBusy the store reported contention after all retries.
	KindBusy
)

// OpError decorates a failure with the operation that produced it.
type OpError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) and friends work on kinds.
func (e *OpError) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrNotFound
	case KindValidation:
		return target == ErrValidation
	case KindBusy:
		return target == ErrBusy
	default:
		return false
	}
}

func notFound(op, format string, args ...any) error {
	return &OpError{Op: op, Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

func invalid(op, format string, args ...any) error {
	return &OpError{Op: op, Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// IsNotFound reports whether err means a referenced id doesn't exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError reports whether err is an input validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsBusyError reports whether err is a transient "writer busy" condition of
// the underlying store.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrBusy) {
		return true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}

		return false
	}

	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		return duckErr.Type == duckdb.ErrorTypeTransaction
	}

	// Detect by common error messages
	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "sqlite_busy") ||
		strings.Contains(errStr, "conflict on tuple") ||
		strings.Contains(errStr, "transaction conflict")
}

// IsRetryable reports whether the caller may re-issue the failed operation
// unchanged and expect it to succeed once contention clears.
func IsRetryable(err error) bool {
	return IsBusyError(err)
}
