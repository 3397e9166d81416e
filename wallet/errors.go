/*
errors.go - Error taxonomy for the wallet core

ERROR CATEGORIES:
  1. Business-rule errors - returned unmodified to the caller
  2. Storage errors       - wrapped in StorageError, the unit of work is rolled back
  3. Scheduler errors     - ErrJobNotFound for unknown job ids

USAGE:
  if errors.Is(err, wallet.ErrInsufficientFunds) {
      var funds *wallet.InsufficientFundsError
      errors.As(err, &funds)
  }
*/
package wallet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound covers missing entries and accounts, entries owned by someone
	// else, and entries in the wrong state for the requested transition.
	ErrNotFound = errors.New("not found")

	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrInvalidAmount = errors.New("invalid amount")

	ErrAccountBlocked = errors.New("account is blocked")

	// ErrInvalidState is returned for admin deny on a non-pending entry and for
	// recurring intervals that map to no trigger.
	ErrInvalidState = errors.New("invalid state")

	ErrSelfTransfer = errors.New("sender and receiver must differ")

	// ErrDatabase is matched by every StorageError.
	ErrDatabase = errors.New("database error")

	ErrJobNotFound = errors.New("scheduler job not found")

	ErrAccountExists = errors.New("account already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports the balance shortage at debit time.
type InsufficientFundsError struct {
	Account   string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s: available %s, requested %s",
		e.Account, FormatMoney(e.Available), FormatMoney(e.Requested))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

type AmountError struct {
	Amount decimal.Decimal
	Reason string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("invalid amount %s: %s", e.Amount.String(), e.Reason)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// InvalidIntervalError is returned when a recurring interval has no trigger.
type InvalidIntervalError struct {
	Interval   RecurringInterval
	CustomDays int
}

func (e *InvalidIntervalError) Error() string {
	if e.Interval == IntervalCustom {
		return fmt.Sprintf("invalid custom interval: %d days", e.CustomDays)
	}
	return fmt.Sprintf("unknown recurring interval %q", e.Interval)
}

func (e *InvalidIntervalError) Unwrap() error { return ErrInvalidState }

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDatabase, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrDatabase }

// wrapStorage leaves domain errors untouched and wraps everything else.
func wrapStorage(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAccountBlocked) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrAccountExists)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or
// the current state of their data.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrSelfTransfer)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
