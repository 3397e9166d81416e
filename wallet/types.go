/*
Package wallet provides the transaction ledger and recurring-transfer core.

PURPOSE:
  Moves money between accounts. A one-off transfer goes through
  draft -> pending -> completed/declined, and a recurring transfer is a
  standing instruction that spawns completed transfers on a schedule.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account:              Balance holder owned by the account directory
  - Transfer:             Shared payload (sender, receiver, amount, category, description)
  - Transaction:          One-off ledger entry with a monotonic status
  - RecurringTransaction: Standing instruction bound to a scheduler job
  - Entry:                Sealed sum type over the two entry kinds

MONEY:
  All money is decimal.Decimal with two decimal places. Never float64.

INVARIANTS:
  1. amount > 0 for every entry
  2. draft -> pending -> {completed | declined | denied}, never backwards
  3. A unit of currency is in exactly one place: sender balance (draft),
     in flight (pending), receiver balance (completed) or refunded (declined/denied)

SEE ALSO:
  - ledger.go:    Transaction state machine
  - recurring.go: Recurring scheduler adapter
  - store.go:     Persistence contracts
*/
package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyScale is the number of decimal places kept for every amount.
const MoneyScale = 2

// MaxAmount is the first value that no longer fits NUMERIC(10,2).
var MaxAmount = decimal.New(1, 8)

// ValidateAmount rejects non-positive, over-precise or out-of-range amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &AmountError{Amount: amount, Reason: "amount must be positive"}
	}
	if !amount.Equal(amount.Round(MoneyScale)) {
		return &AmountError{Amount: amount, Reason: "amount has more than two decimal places"}
	}
	if amount.GreaterThanOrEqual(MaxAmount) {
		return &AmountError{Amount: amount, Reason: "amount exceeds the supported range"}
	}
	return nil
}

// FormatMoney renders an amount with exactly two decimal places.
func FormatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(MoneyScale)
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is the balance holder for one user.
type Account struct {
	Username  string
	Balance   decimal.Decimal
	IsBlocked bool
}

// =============================================================================
// ENTRIES
// =============================================================================

type EntryKind string

const (
	KindTransaction EntryKind = "transaction"
	KindRecurring   EntryKind = "recurring"
)

// Entry is implemented by Transaction and RecurringTransaction only.
type Entry interface {
	EntryID() int64
	Kind() EntryKind
	Base() Transfer
	isEntry()
}

// Transfer is the payload shared by both entry kinds.
type Transfer struct {
	Sender      string
	Receiver    string
	Amount      decimal.Decimal
	CategoryID  *int64
	Description *string
}

// TransactionStatus is the lifecycle state of a one-off transfer.
type TransactionStatus string

const (
	StatusDraft     TransactionStatus = "draft"
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusDeclined  TransactionStatus = "declined"
	StatusDenied    TransactionStatus = "denied"
)

// IsTerminal reports whether no further transition is possible.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDeclined || s == StatusDenied
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusCompleted, StatusDeclined, StatusDenied:
		return true
	}
	return false
}

// Transaction is a one-off transfer.
type Transaction struct {
	ID int64
	Transfer
	Status          TransactionStatus
	TransactionDate *time.Time // set on completion, decline or deny
	IsFlagged       bool
	RecurringID     *int64 // source instruction for scheduler-spawned entries
	CreatedAt       time.Time
}

func (t Transaction) EntryID() int64  { return t.ID }
func (t Transaction) Kind() EntryKind { return KindTransaction }
func (t Transaction) Base() Transfer  { return t.Transfer }
func (Transaction) isEntry()          {}

// RecurringStatus is the lifecycle state of a recurring instruction.
type RecurringStatus string

const (
	RecurringOngoing   RecurringStatus = "ongoing"
	RecurringCancelled RecurringStatus = "cancelled"
)

// RecurringTransaction is a standing instruction executed by a scheduler job.
type RecurringTransaction struct {
	ID int64
	Transfer
	Interval   RecurringInterval
	CustomDays int
	StartDate  time.Time
	JobID      string
	Status     RecurringStatus
	IsActive   bool
	CreatedAt  time.Time
}

func (r RecurringTransaction) EntryID() int64  { return r.ID }
func (r RecurringTransaction) Kind() EntryKind { return KindRecurring }
func (r RecurringTransaction) Base() Transfer  { return r.Transfer }
func (RecurringTransaction) isEntry()          {}

// Payload returns the data a scheduler job needs to re-run this transfer.
func (r RecurringTransaction) Payload() RecurringPayload {
	return RecurringPayload{
		RecurringID: r.ID,
		Sender:      r.Sender,
		Receiver:    r.Receiver,
		Amount:      r.Amount,
		CategoryID:  r.CategoryID,
		Description: r.Description,
	}
}

// RecurringPayload is passed to every job firing. It carries everything the
// firing needs so jobs can be rebuilt after a restart.
type RecurringPayload struct {
	RecurringID int64
	Sender      string
	Receiver    string
	Amount      decimal.Decimal
	CategoryID  *int64
	Description *string
}

// RecurringView pairs an ongoing instruction with its next scheduled run.
type RecurringView struct {
	RecurringTransaction
	NextRunDate string // YYYY-MM-DD, empty when the scheduler has no job
}

// =============================================================================
// REQUESTS
// =============================================================================

// TransferRequest is the caller's intent for a draft or a recurring transfer.
type TransferRequest struct {
	Receiver    string
	Amount      decimal.Decimal
	CategoryID  *int64
	Description *string
}

// RecurringRequest describes a new recurring transfer.
type RecurringRequest struct {
	TransferRequest
	Interval   RecurringInterval
	CustomDays int
	StartDate  time.Time // calendar date only; zero means today
}

// DateLayout is the plain-date format used for next-run dates.
const DateLayout = "2006-01-02"

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return StartOfDayIn(t, t.Location())
}

// StartOfDayIn is midnight in loc of the calendar date t shows in its own
// location. 2030-03-15 UTC becomes 2030-03-15 00:00 in loc.
func StartOfDayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
