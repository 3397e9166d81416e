/*
ledger.go - Transaction state machine

PURPOSE:
  Enforces the lifecycle of one-off transfers and the balance changes tied
  to each transition:

    draft --confirm--> pending --accept--> completed   (credit receiver)
      |                   |----decline---> declined    (refund sender, notify)
      |                   '----deny------> denied      (admin; refund, notify)
      |--edit--> draft
      '--delete--> (gone)

MONEY MOVEMENT:
  confirm debits the sender. accept credits the receiver. decline and deny
  refund the sender. Each transition reads the entry through a status guard
  inside one unit of work, so an entry that already moved on fails with
  ErrNotFound (or ErrInvalidState for deny) instead of moving money twice.

ATOMICITY:
  The balance write and the status write of a transition commit together or
  not at all. Notifications are sent after commit and never fail the call.

SEE ALSO:
  - recurring.go: Recurring transfers and scheduler job bodies
  - history.go:   Read-only listings
*/
package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the entry point for every money movement.
type Ledger struct {
	store     Store
	scheduler Scheduler
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the zone recurring start dates are anchored in. It must
// match the scheduler's zone. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// NewLedger wires the core to its collaborators.
func NewLedger(store Store, scheduler Scheduler, notifier Notifier, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Ledger{
		store:     store,
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger.With("component", "ledger"),
		now:       time.Now,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// DRAFTS
// =============================================================================

// CreateDraft records a transfer intent without touching any balance.
func (l *Ledger) CreateDraft(ctx context.Context, sender string, req TransferRequest) (*Transaction, error) {
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	var created *Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		if err := checkParties(ctx, tx, sender, req.Receiver); err != nil {
			return err
		}
		entry := &Transaction{
			Transfer:  req.transfer(sender),
			Status:    StatusDraft,
			CreatedAt: l.now(),
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		created = entry
		return nil
	})
	if err != nil {
		return nil, wrapStorage("create draft", err)
	}

	l.logger.Info("draft created", "transaction_id", created.ID, "sender", sender, "receiver", created.Receiver)
	return created, nil
}

// UpdateDraft replaces the editable fields of sender's draft.
func (l *Ledger) UpdateDraft(ctx context.Context, sender string, id int64, req TransferRequest) (*Transaction, error) {
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	var updated *Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		entry, err := tx.GetDraft(ctx, id, sender)
		if err != nil {
			return err
		}
		if req.Receiver != entry.Receiver {
			if err := checkReceiver(ctx, tx, sender, req.Receiver); err != nil {
				return err
			}
		}
		entry.Transfer = req.transfer(sender)
		if err := tx.UpdateTransaction(ctx, entry); err != nil {
			return err
		}
		updated = entry
		return nil
	})
	if err != nil {
		return nil, wrapStorage("update draft", err)
	}
	return updated, nil
}

// DeleteDraft removes sender's draft permanently.
func (l *Ledger) DeleteDraft(ctx context.Context, sender string, id int64) error {
	err := l.store.WithTx(ctx, func(tx Tx) error {
		entry, err := tx.GetDraft(ctx, id, sender)
		if err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, entry.ID)
	})
	return wrapStorage("delete draft", err)
}

// ConfirmDraft debits the sender and moves the draft to pending.
func (l *Ledger) ConfirmDraft(ctx context.Context, sender string, id int64) (*Transaction, error) {
	var confirmed *Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		entry, err := tx.GetDraft(ctx, id, sender)
		if err != nil {
			return err
		}
		if err := ValidateAmount(entry.Amount); err != nil {
			return err
		}

		account, err := tx.GetAccount(ctx, entry.Sender)
		if err != nil {
			return err
		}
		if err := debit(account, entry.Amount); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}

		entry.Status = StatusPending
		if err := tx.UpdateTransaction(ctx, entry); err != nil {
			return err
		}
		confirmed = entry
		return nil
	})
	if err != nil {
		return nil, wrapStorage("confirm draft", err)
	}

	l.logger.Info("transaction confirmed", "transaction_id", id, "sender", sender, "amount", FormatMoney(confirmed.Amount))
	return confirmed, nil
}

// =============================================================================
// INCOMING
// =============================================================================

// AcceptIncoming credits the receiver and completes the transfer. It returns
// the receiver's new balance.
func (l *Ledger) AcceptIncoming(ctx context.Context, receiver string, id int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.store.WithTx(ctx, func(tx Tx) error {
		entry, err := tx.GetPendingIncoming(ctx, id, receiver)
		if err != nil {
			return err
		}
		account, err := tx.GetAccount(ctx, entry.Receiver)
		if err != nil {
			return err
		}
		account.Balance = account.Balance.Add(entry.Amount)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}

		now := l.now()
		entry.Status = StatusCompleted
		entry.TransactionDate = &now
		if err := tx.UpdateTransaction(ctx, entry); err != nil {
			return err
		}
		balance = account.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, wrapStorage("accept transaction", err)
	}

	l.logger.Info("transaction accepted", "transaction_id", id, "receiver", receiver)
	return balance, nil
}

// DeclineIncoming refunds the sender and notifies them.
func (l *Ledger) DeclineIncoming(ctx context.Context, receiver string, id int64) error {
	declined, err := l.refund(ctx, "decline transaction", StatusDeclined, func(tx Tx) (*Transaction, error) {
		return tx.GetPendingIncoming(ctx, id, receiver)
	})
	if err != nil {
		return err
	}

	l.logger.Info("transaction declined", "transaction_id", id, "receiver", receiver)
	l.notifyDeclined(ctx, *declined)
	return nil
}

// =============================================================================
// ADMIN
// =============================================================================

// DenyTransaction is the administrative decline of a pending transfer.
func (l *Ledger) DenyTransaction(ctx context.Context, id int64) error {
	denied, err := l.refund(ctx, "deny transaction", StatusDenied, func(tx Tx) (*Transaction, error) {
		entry, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		if entry.Status != StatusPending {
			return nil, &TransitionError{ID: id, From: entry.Status, To: StatusDenied}
		}
		return entry, nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("transaction denied", "transaction_id", id)
	l.notifyDeclined(ctx, *denied)
	return nil
}

// TransitionError is returned when an admin transition does not apply to the
// entry's current status.
type TransitionError struct {
	ID   int64
	From TransactionStatus
	To   TransactionStatus
}

func (e *TransitionError) Error() string {
	return "cannot move transaction from " + string(e.From) + " to " + string(e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// HELPERS
// =============================================================================

// refund returns a pending entry's amount to its sender and closes it with status.
func (l *Ledger) refund(ctx context.Context, op string, status TransactionStatus, load func(Tx) (*Transaction, error)) (*Transaction, error) {
	var closed *Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		entry, err := load(tx)
		if err != nil {
			return err
		}
		account, err := tx.GetAccount(ctx, entry.Sender)
		if err != nil {
			return err
		}
		account.Balance = account.Balance.Add(entry.Amount)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}

		now := l.now()
		entry.Status = status
		entry.TransactionDate = &now
		if err := tx.UpdateTransaction(ctx, entry); err != nil {
			return err
		}
		closed = entry
		return nil
	})
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	return closed, nil
}

func (l *Ledger) notifyDeclined(ctx context.Context, entry Transaction) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.NotifyDeclined(ctx, entry.Sender, entry); err != nil {
		l.logger.Warn("decline notification failed", "transaction_id", entry.ID, "user", entry.Sender, "error", err)
	}
}

// debit takes amount from account or reports the shortage. Equal balances pass.
func debit(account *Account, amount decimal.Decimal) error {
	if account.Balance.LessThan(amount) {
		return &InsufficientFundsError{
			Account:   account.Username,
			Available: account.Balance,
			Requested: amount,
		}
	}
	account.Balance = account.Balance.Sub(amount)
	return nil
}

// checkParties validates a new transfer's sender and receiver. Both
// accounts are locked in username order.
func checkParties(ctx context.Context, tx Tx, sender, receiver string) error {
	if receiver == sender {
		return ErrSelfTransfer
	}
	accounts, err := lockAccounts(ctx, tx, sender, receiver)
	if err != nil {
		return err
	}
	if accounts[sender].IsBlocked {
		return ErrAccountBlocked
	}
	return nil
}

func checkReceiver(ctx context.Context, tx Tx, sender, receiver string) error {
	if receiver == sender {
		return ErrSelfTransfer
	}
	if _, err := tx.GetAccount(ctx, receiver); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &AccountNotFoundError{Username: receiver}
		}
		return err
	}
	return nil
}

// AccountNotFoundError names the account that does not exist.
type AccountNotFoundError struct {
	Username string
}

func (e *AccountNotFoundError) Error() string {
	return "account " + e.Username + " not found"
}

func (e *AccountNotFoundError) Unwrap() error { return ErrNotFound }

// lockAccounts loads accounts in username order so concurrent units of work
// that touch the same pair never wait on each other in opposite order.
func lockAccounts(ctx context.Context, tx Tx, usernames ...string) (map[string]*Account, error) {
	ordered := append([]string(nil), usernames...)
	sort.Strings(ordered)

	accounts := make(map[string]*Account, len(ordered))
	for _, name := range ordered {
		if _, ok := accounts[name]; ok {
			continue
		}
		account, err := tx.GetAccount(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &AccountNotFoundError{Username: name}
			}
			return nil, err
		}
		accounts[name] = account
	}
	return accounts, nil
}

func (r TransferRequest) transfer(sender string) Transfer {
	return Transfer{
		Sender:      sender,
		Receiver:    r.Receiver,
		Amount:      r.Amount,
		CategoryID:  r.CategoryID,
		Description: r.Description,
	}
}
