/*
recurring.go - Recurring scheduler adapter

PURPOSE:
  Turns a recurring-transfer request into a durable RecurringTransaction
  plus a repeating scheduler job keyed "recurring_transaction_<id>", and
  defines what every firing of that job does.

FIRING:
  1. Lock sender and receiver accounts (username order)
  2. Enough funds: debit, credit, insert a completed Transaction, commit
  3. Not enough: nothing is written, the sender is notified, the job stays
  Any other failure rolls back, is logged, and is swallowed so the
  scheduler keeps running this job and every other one.

CANCELLATION:
  Removes the job, then marks the entry cancelled and inactive. A second
  cancel finds no ongoing entry and fails with ErrNotFound before the
  scheduler is touched.
*/
package wallet

import (
	"context"
	"errors"
	"fmt"
)

// CreateRecurring persists a recurring transfer and registers its job.
func (l *Ledger) CreateRecurring(ctx context.Context, sender string, req RecurringRequest) (*RecurringTransaction, error) {
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	trigger, err := TriggerFor(req.Interval, req.CustomDays)
	if err != nil {
		return nil, err
	}
	start := req.StartDate
	if start.IsZero() {
		start = l.now().In(l.loc)
	}
	start = StartOfDayIn(start, l.loc)

	var (
		created  *RecurringTransaction
		jobAdded bool
	)
	err = l.store.WithTx(ctx, func(tx Tx) error {
		if err := checkParties(ctx, tx, sender, req.Receiver); err != nil {
			return err
		}
		entry := &RecurringTransaction{
			Transfer:   req.transfer(sender),
			Interval:   req.Interval,
			CustomDays: req.CustomDays,
			StartDate:  start,
			Status:     RecurringOngoing,
			IsActive:   true,
			CreatedAt:  l.now(),
		}
		if err := tx.InsertRecurring(ctx, entry); err != nil {
			return err
		}
		entry.JobID = JobID(entry.ID)
		if err := tx.UpdateRecurring(ctx, entry); err != nil {
			return err
		}
		if err := l.addJob(*entry, trigger); err != nil {
			return err
		}
		jobAdded = true
		created = entry
		return nil
	})
	if err != nil {
		if jobAdded {
			if rmErr := l.scheduler.RemoveJob(created.JobID); rmErr != nil {
				l.logger.Error("failed to remove job after rollback", "job_id", created.JobID, "error", rmErr)
			}
		}
		return nil, wrapStorage("create recurring", err)
	}

	l.logger.Info("recurring transaction created",
		"recurring_id", created.ID,
		"job_id", created.JobID,
		"interval", created.Interval,
		"trigger", trigger.String(),
		"start", created.StartDate.Format(DateLayout),
	)
	return created, nil
}

// CancelRecurring removes the job and closes sender's ongoing entry.
func (l *Ledger) CancelRecurring(ctx context.Context, sender string, id int64) error {
	err := l.store.WithTx(ctx, func(tx Tx) error {
		entry, err := tx.GetOngoingRecurring(ctx, id, sender)
		if err != nil {
			return err
		}
		if err := l.scheduler.RemoveJob(entry.JobID); err != nil {
			if !errors.Is(err, ErrJobNotFound) {
				return fmt.Errorf("remove job %s: %w", entry.JobID, err)
			}
			l.logger.Warn("job already gone at cancel", "job_id", entry.JobID)
		}
		entry.Status = RecurringCancelled
		entry.IsActive = false
		return tx.UpdateRecurring(ctx, entry)
	})
	if err != nil {
		return wrapStorage("cancel recurring", err)
	}

	l.logger.Info("recurring transaction cancelled", "recurring_id", id, "sender", sender)
	return nil
}

// ListRecurring returns sender's ongoing entries with their next run date.
func (l *Ledger) ListRecurring(ctx context.Context, sender string) ([]RecurringView, error) {
	entries, err := l.store.ListRecurring(ctx, sender, RecurringOngoing)
	if err != nil {
		return nil, wrapStorage("list recurring", err)
	}
	views := make([]RecurringView, 0, len(entries))
	for _, entry := range entries {
		view := RecurringView{RecurringTransaction: entry}
		if next, ok := l.scheduler.NextRunTime(entry.JobID); ok {
			view.NextRunDate = next.In(l.loc).Format(DateLayout)
		}
		views = append(views, view)
	}
	return views, nil
}

// RestoreRecurring registers jobs for every ongoing entry that the scheduler
// does not know yet. It is called once at startup.
func (l *Ledger) RestoreRecurring(ctx context.Context) (int, error) {
	entries, err := l.store.ListRecurring(ctx, "", RecurringOngoing)
	if err != nil {
		return 0, wrapStorage("restore recurring", err)
	}
	restored := 0
	for _, entry := range entries {
		if _, ok := l.scheduler.NextRunTime(entry.JobID); ok {
			continue
		}
		trigger, err := TriggerFor(entry.Interval, entry.CustomDays)
		if err != nil {
			l.logger.Error("stored recurring entry has no trigger", "recurring_id", entry.ID, "error", err)
			continue
		}
		if err := l.addJob(entry, trigger); err != nil {
			return restored, fmt.Errorf("restore %s: %w", entry.JobID, err)
		}
		restored++
	}
	l.logger.Info("recurring jobs restored", "count", restored)
	return restored, nil
}

func (l *Ledger) addJob(entry RecurringTransaction, trigger Trigger) error {
	return l.scheduler.AddJob(l.ExecuteRecurring, Job{
		ID:      entry.JobID,
		Trigger: trigger,
		Start:   entry.StartDate,
		Payload: entry.Payload(),
	})
}

// =============================================================================
// JOB BODY
// =============================================================================

// FiringResult tells what one job firing did.
type FiringResult string

const (
	FiringCompleted    FiringResult = "completed"
	FiringInsufficient FiringResult = "insufficient_funds"
	FiringSkipped      FiringResult = "skipped"
	FiringFailed       FiringResult = "failed"
)

// ExecuteRecurring is the scheduler callback. It never panics and never
// returns an error to the scheduler.
func (l *Ledger) ExecuteRecurring(ctx context.Context, payload RecurringPayload) {
	l.RunRecurring(ctx, payload)
}

// RunRecurring performs one firing and reports the outcome.
func (l *Ledger) RunRecurring(ctx context.Context, payload RecurringPayload) (result FiringResult) {
	log := l.logger.With("recurring_id", payload.RecurringID, "sender", payload.Sender, "receiver", payload.Receiver)

	defer func() {
		if r := recover(); r != nil {
			log.Error("recurring firing panicked", "panic", r)
			result = FiringFailed
		}
	}()

	var spawned *Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		source, err := tx.GetRecurring(ctx, payload.RecurringID)
		if err != nil {
			return err
		}
		if source.Status != RecurringOngoing {
			return errSourceInactive
		}

		accounts, err := lockAccounts(ctx, tx, payload.Sender, payload.Receiver)
		if err != nil {
			return err
		}
		sender, receiver := accounts[payload.Sender], accounts[payload.Receiver]
		if err := debit(sender, payload.Amount); err != nil {
			return err
		}
		receiver.Balance = receiver.Balance.Add(payload.Amount)
		if err := tx.SaveAccount(ctx, sender); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, receiver); err != nil {
			return err
		}

		now := l.now()
		recurringID := payload.RecurringID
		entry := &Transaction{
			Transfer: Transfer{
				Sender:      payload.Sender,
				Receiver:    payload.Receiver,
				Amount:      payload.Amount,
				CategoryID:  payload.CategoryID,
				Description: payload.Description,
			},
			Status:          StatusCompleted,
			TransactionDate: &now,
			RecurringID:     &recurringID,
			CreatedAt:       now,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		spawned = entry
		return nil
	})

	switch {
	case err == nil:
		log.Info("recurring transfer completed", "transaction_id", spawned.ID, "amount", FormatMoney(payload.Amount))
		return FiringCompleted
	case errors.Is(err, errSourceInactive), errors.Is(err, ErrNotFound):
		log.Warn("recurring firing skipped", "reason", err.Error())
		return FiringSkipped
	case errors.Is(err, ErrInsufficientFunds):
		log.Warn("recurring transfer failed", "reason", err.Error())
		if l.notifier != nil {
			if nerr := l.notifier.NotifyRecurringFailed(ctx, payload.Sender, payload); nerr != nil {
				log.Warn("recurring failure notification failed", "error", nerr)
			}
		}
		return FiringInsufficient
	default:
		log.Error("recurring firing rolled back", "error", wrapStorage("recurring firing", err))
		return FiringFailed
	}
}

var errSourceInactive = errors.New("recurring entry is no longer ongoing")
