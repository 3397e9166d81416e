package wallet_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/virtual-wallet/scheduler"
	"github.com/warp/virtual-wallet/wallet"
)

func recurringRequest(receiver, amount string, interval wallet.RecurringInterval) wallet.RecurringRequest {
	return wallet.RecurringRequest{
		TransferRequest: wallet.TransferRequest{Receiver: receiver, Amount: money(amount)},
		Interval:        interval,
	}
}

func (f *fixture) recurring(t *testing.T, sender, receiver, amount string) *wallet.RecurringTransaction {
	t.Helper()
	r, err := f.ledger.CreateRecurring(context.Background(), sender, recurringRequest(receiver, amount, wallet.IntervalDaily))
	require.NoError(t, err)
	return r
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateRecurring(t *testing.T) {
	// GIVEN: alice and bob
	// WHEN: alice sets up a weekly 20.00 transfer starting on the 15th at noon
	// THEN: The entry is ongoing and one job keyed by its id starts at midnight

	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	req := recurringRequest("bob", "20.00", wallet.IntervalWeekly)
	req.StartDate = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

	r, err := f.ledger.CreateRecurring(context.Background(), "alice", req)
	require.NoError(t, err)

	assert.Equal(t, wallet.RecurringOngoing, r.Status)
	assert.True(t, r.IsActive)
	assert.Equal(t, wallet.JobID(r.ID), r.JobID)
	assert.True(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC).Equal(r.StartDate))

	stored, err := f.store.GetRecurring(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.JobID, stored.JobID)
	assert.Equal(t, wallet.IntervalWeekly, stored.Interval)

	job, ok := f.sched.get(r.JobID)
	require.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, job.Trigger.Every)
	assert.True(t, r.StartDate.Equal(job.Start))
	assert.Equal(t, r.ID, job.Payload.RecurringID)
	assert.Equal(t, "alice", job.Payload.Sender)
	assert.Equal(t, "bob", job.Payload.Receiver)
	assert.Equal(t, "20.00", wallet.FormatMoney(job.Payload.Amount))

	assert.Equal(t, "100.00", f.balance(t, "alice"), "creation moves no money")
}

func TestCreateRecurring_DefaultStartIsToday(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	r := f.recurring(t, "alice", "bob", "5.00")

	assert.True(t, wallet.StartOfDay(testNow).Equal(r.StartDate))
}

func TestCreateRecurring_StartsAtMidnightInSchedulerZone(t *testing.T) {
	// GIVEN: A ledger and a cron scheduler both running in New York time
	// WHEN: A daily transfer is requested to start on 2030-03-15
	// THEN: The first run is 2030-03-15 00:00 in New York, not the evening before

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := scheduler.New(logger, ny)
	t.Cleanup(func() { <-sched.Stop().Done() })
	ledger := wallet.NewLedger(f.store, sched, f.notifier, logger,
		wallet.WithClock(func() time.Time { return testNow }), wallet.WithLocation(ny))

	req := recurringRequest("bob", "5.00", wallet.IntervalDaily)
	req.StartDate, err = time.Parse(wallet.DateLayout, "2030-03-15")
	require.NoError(t, err)

	r, err := ledger.CreateRecurring(context.Background(), "alice", req)
	require.NoError(t, err)

	want := time.Date(2030, time.March, 15, 0, 0, 0, 0, ny)
	assert.True(t, want.Equal(r.StartDate), "start %s", r.StartDate)
	next, ok := sched.NextRunTime(r.JobID)
	require.True(t, ok)
	assert.True(t, want.Equal(next), "next run %s", next)

	views, err := ledger.ListRecurring(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "2030-03-15", views[0].NextRunDate)
}

func TestCreateRecurring_DefaultStartUsesLedgerZone(t *testing.T) {
	// 02:00 UTC on the 10th is still the 9th in New York
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	clock := time.Date(2025, time.March, 10, 2, 0, 0, 0, time.UTC)
	ledger := wallet.NewLedger(f.store, f.sched, f.notifier, nil,
		wallet.WithClock(func() time.Time { return clock }), wallet.WithLocation(ny))

	r, err := ledger.CreateRecurring(context.Background(), "alice", recurringRequest("bob", "5.00", wallet.IntervalDaily))
	require.NoError(t, err)

	assert.True(t, time.Date(2025, time.March, 9, 0, 0, 0, 0, ny).Equal(r.StartDate), "start %s", r.StartDate)
}

func TestCreateRecurring_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		receiver   string
		amount     string
		interval   wallet.RecurringInterval
		customDays int
		want       error
	}{
		{"unknown interval", "bob", "5.00", "fortnightly", 0, wallet.ErrInvalidState},
		{"custom without days", "bob", "5.00", wallet.IntervalCustom, 0, wallet.ErrInvalidState},
		{"zero amount", "bob", "0", wallet.IntervalDaily, 0, wallet.ErrInvalidAmount},
		{"self transfer", "alice", "5.00", wallet.IntervalDaily, 0, wallet.ErrSelfTransfer},
		{"unknown receiver", "nobody", "5.00", wallet.IntervalDaily, 0, wallet.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
			req := recurringRequest(tt.receiver, tt.amount, tt.interval)
			req.CustomDays = tt.customDays

			_, err := f.ledger.CreateRecurring(context.Background(), "alice", req)
			assert.ErrorIs(t, err, tt.want)

			all, err := f.store.ListRecurring(context.Background(), "", "")
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Zero(t, f.sched.len())
		})
	}
}

func TestCreateRecurring_InvalidIntervalError(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	req := recurringRequest("bob", "5.00", wallet.IntervalCustom)
	req.CustomDays = -3

	_, err := f.ledger.CreateRecurring(context.Background(), "alice", req)
	var invalid *wallet.InvalidIntervalError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, -3, invalid.CustomDays)
	assert.True(t, wallet.IsClientError(err))
}

func TestCreateRecurring_SchedulerFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	f.sched.addErr = errors.New("scheduler offline")

	_, err := f.ledger.CreateRecurring(context.Background(), "alice", recurringRequest("bob", "5.00", wallet.IntervalDaily))
	require.ErrorIs(t, err, wallet.ErrDatabase)

	all, err := f.store.ListRecurring(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateRecurring_CommitFailureRemovesJob(t *testing.T) {
	// GIVEN: A store that fails at commit, after the job was registered
	// WHEN: alice creates a recurring transfer
	// THEN: The job is removed again and no entry remains

	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	f.store.failCommit = true

	_, err := f.ledger.CreateRecurring(context.Background(), "alice", recurringRequest("bob", "5.00", wallet.IntervalDaily))
	require.ErrorIs(t, err, wallet.ErrDatabase)

	f.store.failCommit = false
	assert.Zero(t, f.sched.len())
	all, err := f.store.ListRecurring(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

// =============================================================================
// FIRING
// =============================================================================

func TestRunRecurring_Completed(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "10.00"})
	r := f.recurring(t, "alice", "bob", "20.00")

	result := f.ledger.RunRecurring(context.Background(), r.Payload())
	assert.Equal(t, wallet.FiringCompleted, result)

	assert.Equal(t, "80.00", f.balance(t, "alice"))
	assert.Equal(t, "30.00", f.balance(t, "bob"))

	spawned, err := f.store.ListTransactions(context.Background(), wallet.TransactionFilter{Sender: "alice"})
	require.NoError(t, err)
	require.Len(t, spawned, 1)
	assert.Equal(t, wallet.StatusCompleted, spawned[0].Status)
	require.NotNil(t, spawned[0].RecurringID)
	assert.Equal(t, r.ID, *spawned[0].RecurringID)
	require.NotNil(t, spawned[0].TransactionDate)
	assert.True(t, testNow.Equal(*spawned[0].TransactionDate))
}

func TestExecuteRecurring_FiredByScheduler(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	r := f.recurring(t, "alice", "bob", "20.00")

	f.sched.fire(t, r.JobID)
	f.sched.fire(t, r.JobID)

	assert.Equal(t, "60.00", f.balance(t, "alice"))
	assert.Equal(t, "40.00", f.balance(t, "bob"))
}

func TestRunRecurring_InsufficientFunds(t *testing.T) {
	// GIVEN: alice with 10.00 and a 20.00 daily transfer
	// WHEN: The job fires
	// THEN: Nothing moves, alice is told, and the job keeps its schedule

	f := newFixture(t, map[string]string{"alice": "10.00", "bob": "0"})
	r := f.recurring(t, "alice", "bob", "20.00")

	result := f.ledger.RunRecurring(context.Background(), r.Payload())
	assert.Equal(t, wallet.FiringInsufficient, result)

	assert.Equal(t, "10.00", f.balance(t, "alice"))
	assert.Equal(t, "0.00", f.balance(t, "bob"))
	all, err := f.store.ListTransactions(context.Background(), wallet.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].user)
	require.NotNil(t, sent[0].recurring)
	assert.Equal(t, r.ID, sent[0].recurring.RecurringID)

	_, ok := f.sched.get(r.JobID)
	assert.True(t, ok)
	stored, err := f.store.GetRecurring(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.RecurringOngoing, stored.Status)
}

func TestRunRecurring_SkippedAfterCancel(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	r := f.recurring(t, "alice", "bob", "20.00")
	payload := r.Payload()
	require.NoError(t, f.ledger.CancelRecurring(context.Background(), "alice", r.ID))

	assert.Equal(t, wallet.FiringSkipped, f.ledger.RunRecurring(context.Background(), payload))
	assert.Equal(t, "100.00", f.balance(t, "alice"))

	payload.RecurringID = 9999
	assert.Equal(t, wallet.FiringSkipped, f.ledger.RunRecurring(context.Background(), payload))
}

func TestRunRecurring_StorageFailureIsContained(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	r := f.recurring(t, "alice", "bob", "20.00")
	f.store.failCommit = true

	assert.Equal(t, wallet.FiringFailed, f.ledger.RunRecurring(context.Background(), r.Payload()))

	f.store.failCommit = false
	assert.Equal(t, "100.00", f.balance(t, "alice"))
	assert.Equal(t, "0.00", f.balance(t, "bob"))
}

func TestRunRecurring_PanicIsRecovered(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "0", "bob": "0"})
	r := f.recurring(t, "alice", "bob", "20.00")
	f.notifier.panics = true

	assert.NotPanics(t, func() {
		assert.Equal(t, wallet.FiringFailed, f.ledger.RunRecurring(context.Background(), r.Payload()))
	})
}

// =============================================================================
// CANCEL / LIST / RESTORE
// =============================================================================

func TestCancelRecurring(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	r := f.recurring(t, "alice", "bob", "20.00")
	ctx := context.Background()

	assert.ErrorIs(t, f.ledger.CancelRecurring(ctx, "bob", r.ID), wallet.ErrNotFound, "only the sender may cancel")
	_, ok := f.sched.get(r.JobID)
	require.True(t, ok)

	require.NoError(t, f.ledger.CancelRecurring(ctx, "alice", r.ID))

	_, ok = f.sched.get(r.JobID)
	assert.False(t, ok)
	assert.Equal(t, 1, f.sched.removeCalls())
	stored, err := f.store.GetRecurring(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.RecurringCancelled, stored.Status)
	assert.False(t, stored.IsActive)

	// GIVEN: The entry is already cancelled
	// WHEN: Cancelling it again
	// THEN: NotFound, and the scheduler is not asked to remove the job twice
	assert.ErrorIs(t, f.ledger.CancelRecurring(ctx, "alice", r.ID), wallet.ErrNotFound)
	assert.Equal(t, 1, f.sched.removeCalls())
}

func TestCancelRecurring_JobAlreadyGone(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	r := f.recurring(t, "alice", "bob", "20.00")
	require.NoError(t, f.sched.RemoveJob(r.JobID))

	require.NoError(t, f.ledger.CancelRecurring(context.Background(), "alice", r.ID))

	stored, err := f.store.GetRecurring(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.RecurringCancelled, stored.Status)
}

func TestListRecurring(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "100.00"})
	first := f.recurring(t, "alice", "bob", "1.00")
	second := f.recurring(t, "alice", "bob", "2.00")
	f.recurring(t, "bob", "alice", "3.00")
	require.NoError(t, f.ledger.CancelRecurring(context.Background(), "alice", first.ID))

	views, err := f.ledger.ListRecurring(context.Background(), "alice")
	require.NoError(t, err)

	require.Len(t, views, 1)
	assert.Equal(t, second.ID, views[0].ID)
	assert.Equal(t, testNow.Format(wallet.DateLayout), views[0].NextRunDate)

	views, err = f.ledger.ListRecurring(context.Background(), "carol")
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestRestoreRecurring(t *testing.T) {
	// GIVEN: Two ongoing entries and one cancelled entry in the store
	// WHEN: A fresh scheduler is restored at startup
	// THEN: Only the ongoing entries get jobs, and a second restore adds none

	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	a := f.recurring(t, "alice", "bob", "1.00")
	b := f.recurring(t, "alice", "bob", "2.00")
	c := f.recurring(t, "alice", "bob", "3.00")
	require.NoError(t, f.ledger.CancelRecurring(context.Background(), "alice", c.ID))

	restarted := newFakeScheduler()
	ledger := f.newLedger(restarted)

	n, err := ledger.RestoreRecurring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, r := range []*wallet.RecurringTransaction{a, b} {
		job, ok := restarted.get(r.JobID)
		require.True(t, ok)
		assert.Equal(t, r.ID, job.Payload.RecurringID)
	}
	_, ok := restarted.get(c.JobID)
	assert.False(t, ok)

	n, err = ledger.RestoreRecurring(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	restarted.fire(t, a.JobID)
	assert.Equal(t, "99.00", f.balance(t, "alice"))
}
