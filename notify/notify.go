/*
Package notify implements wallet.Notifier.

PURPOSE:
  Tells a sender that money came back to them: a pending transfer was
  declined by its receiver or denied by an administrator, or a recurring
  firing could not run for lack of funds.

IMPLEMENTATIONS:
  Log:    writes each notification to the structured log (default)
  Broker: encodes an Event and hands it to a Publisher
          (notify/rabbitmq, notify/kafka)

Delivery is best effort. The ledger logs a failed notification and never
rolls back a committed transition because of it.
*/
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/virtual-wallet/wallet"
)

// Event types, also used as routing keys.
const (
	EventDeclined        = "transaction.declined"
	EventDenied          = "transaction.denied"
	EventRecurringFailed = "recurring.failed"
)

// Event is the wire form of a notification.
type Event struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	User          string    `json:"user"`
	TransactionID *int64    `json:"transaction_id,omitempty"`
	RecurringID   *int64    `json:"recurring_id,omitempty"`
	Amount        string    `json:"amount"`
	Receiver      string    `json:"receiver"`
	Status        string    `json:"status,omitempty"`
	Subject       string    `json:"subject"`
	Message       string    `json:"message"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// DeclinedEvent describes a declined or denied transfer, told to user.
func DeclinedEvent(user string, tx wallet.Transaction, at time.Time) Event {
	id := tx.ID
	ev := Event{
		EventID:       uuid.NewString(),
		Type:          EventDeclined,
		User:          user,
		TransactionID: &id,
		Amount:        wallet.FormatMoney(tx.Amount),
		Receiver:      tx.Receiver,
		Status:        string(tx.Status),
		Subject:       "Declined Transaction",
		Message:       fmt.Sprintf("Your transaction with ID:%d to %s was declined", tx.ID, tx.Receiver),
		OccurredAt:    at.UTC(),
	}
	if tx.Status == wallet.StatusDenied {
		ev.Type = EventDenied
		ev.Subject = "Denied Transaction"
		ev.Message = fmt.Sprintf("Your transaction with ID:%d was denied", tx.ID)
	}
	return ev
}

// RecurringFailedEvent describes a recurring firing skipped for lack of funds.
func RecurringFailedEvent(user string, p wallet.RecurringPayload, at time.Time) Event {
	id := p.RecurringID
	return Event{
		EventID:     uuid.NewString(),
		Type:        EventRecurringFailed,
		User:        user,
		RecurringID: &id,
		Amount:      wallet.FormatMoney(p.Amount),
		Receiver:    p.Receiver,
		Subject:     "Recurring Transaction Failed",
		Message: fmt.Sprintf("Your recurring transaction to %s for %s could not be completed: insufficient funds",
			p.Receiver, wallet.FormatMoney(p.Amount)),
		OccurredAt: at.UTC(),
	}
}

// =============================================================================
// BROKER
// =============================================================================

// Publisher delivers one event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event Event) error
	Close() error
}

// Broker publishes every notification as an Event.
type Broker struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewBroker(publisher Publisher, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Broker{
		publisher: publisher,
		logger:    logger.With("component", "notifier"),
		now:       time.Now,
	}
}

func (b *Broker) NotifyDeclined(ctx context.Context, user string, tx wallet.Transaction) error {
	return b.publish(ctx, DeclinedEvent(user, tx, b.now()))
}

func (b *Broker) NotifyRecurringFailed(ctx context.Context, user string, payload wallet.RecurringPayload) error {
	return b.publish(ctx, RecurringFailedEvent(user, payload, b.now()))
}

func (b *Broker) publish(ctx context.Context, ev Event) error {
	if err := b.publisher.Publish(ctx, ev.Type, ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	b.logger.Debug("notification published", "event_id", ev.EventID, "type", ev.Type, "user", ev.User)
	return nil
}

// Close releases the publisher.
func (b *Broker) Close() error {
	return b.publisher.Close()
}

// =============================================================================
// LOG
// =============================================================================

// Log writes notifications to a logger instead of delivering them.
type Log struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("component", "notifier"), now: time.Now}
}

func (l *Log) NotifyDeclined(_ context.Context, user string, tx wallet.Transaction) error {
	l.write(DeclinedEvent(user, tx, l.now()))
	return nil
}

func (l *Log) NotifyRecurringFailed(_ context.Context, user string, payload wallet.RecurringPayload) error {
	l.write(RecurringFailedEvent(user, payload, l.now()))
	return nil
}

func (l *Log) write(ev Event) {
	l.logger.Info(ev.Message,
		"event_id", ev.EventID,
		"type", ev.Type,
		"user", ev.User,
		"amount", ev.Amount,
		"receiver", ev.Receiver,
	)
}

func (l *Log) Close() error { return nil }
