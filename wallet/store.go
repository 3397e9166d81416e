/*
store.go - Persistence and collaborator contracts

PURPOSE:
  Defines the interface between the wallet core and its collaborators:
  the account directory, the ledger entry store, the scheduler and the
  notifier. Implementations live in wallet/store (memory), store/sqlite
  and store/postgres.

ATOMICITY:
  Every state transition runs inside Store.WithTx. The function passed in
  receives a Tx; if it returns an error nothing it wrote is persisted.
  Reads performed through the Tx hold the row for the rest of the unit
  of work (a mutex for memory/SQLite, SELECT ... FOR UPDATE for Postgres),
  so two confirmations of one draft are serialized and the second one sees
  a non-draft status.

NOT FOUND:
  Implementations return an error matching ErrNotFound when a row is
  missing or does not satisfy the owner/status guard of the lookup.
*/
package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT DIRECTORY
// =============================================================================

type AccountDirectory interface {
	GetAccount(ctx context.Context, username string) (*Account, error)
	SaveAccount(ctx context.Context, account *Account) error
}

// =============================================================================
// LEDGER ENTRY STORE
// =============================================================================

type EntryStore interface {
	// InsertTransaction persists tx and assigns tx.ID.
	InsertTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	// GetDraft returns the entry only if it is a draft sent by owner.
	GetDraft(ctx context.Context, id int64, owner string) (*Transaction, error)
	// GetPendingIncoming returns the entry only if it is pending and addressed to receiver.
	GetPendingIncoming(ctx context.Context, id int64, receiver string) (*Transaction, error)
	UpdateTransaction(ctx context.Context, tx *Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// InsertRecurring persists r and assigns r.ID.
	InsertRecurring(ctx context.Context, r *RecurringTransaction) error
	GetRecurring(ctx context.Context, id int64) (*RecurringTransaction, error)
	// GetOngoingRecurring returns the entry only if it is ongoing and owned by owner.
	GetOngoingRecurring(ctx context.Context, id int64, owner string) (*RecurringTransaction, error)
	UpdateRecurring(ctx context.Context, r *RecurringTransaction) error
	// ListRecurring returns entries with the given status; an empty owner matches everyone.
	ListRecurring(ctx context.Context, owner string, status RecurringStatus) ([]RecurringTransaction, error)
}

// AccountAdmin seeds and blocks accounts. Registration proper belongs to the
// user service; stores implement this for the dev server and admin routes.
type AccountAdmin interface {
	// CreateAccount fails with ErrAccountExists for a taken username.
	CreateAccount(ctx context.Context, username string, balance decimal.Decimal) error
	SetBlocked(ctx context.Context, username string, blocked bool) error
}

// Tx is the view of the store inside one unit of work.
type Tx interface {
	AccountDirectory
	EntryStore
}

// Store is a Tx outside any unit of work, plus the ability to open one.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// =============================================================================
// SCHEDULER
// =============================================================================

// JobFunc is the body executed on every firing of a job.
type JobFunc func(ctx context.Context, payload RecurringPayload)

// Job is a repeating timer registration.
type Job struct {
	ID      string
	Trigger Trigger
	Start   time.Time
	Payload RecurringPayload
}

type Scheduler interface {
	AddJob(run JobFunc, job Job) error
	// RemoveJob returns ErrJobNotFound for unknown ids.
	RemoveJob(id string) error
	NextRunTime(id string) (time.Time, bool)
}

// =============================================================================
// NOTIFIER
// =============================================================================

// Notifier delivers best-effort messages. Failures never abort a transition.
type Notifier interface {
	// NotifyDeclined tells user that tx was declined by the receiver or denied by an admin.
	NotifyDeclined(ctx context.Context, user string, tx Transaction) error
	NotifyRecurringFailed(ctx context.Context, user string, payload RecurringPayload) error
}
