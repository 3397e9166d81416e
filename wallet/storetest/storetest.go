// Package storetest holds the behaviour every wallet.Store implementation
// must share. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/virtual-wallet/wallet"
)

// Backend is a store under test.
type Backend interface {
	wallet.Store
	wallet.AccountAdmin
}

// Run executes the shared suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Backend)
	}{
		{"Accounts", testAccounts},
		{"TransactionRoundTrip", testTransactionRoundTrip},
		{"StatusGuards", testStatusGuards},
		{"DeleteTransaction", testDeleteTransaction},
		{"RollbackOnError", testRollbackOnError},
		{"ListTransactionsFilters", testListTransactionsFilters},
		{"ListTransactionsSortAndPaging", testListTransactionsSortAndPaging},
		{"RecurringLifecycle", testRecurringLifecycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seed(t *testing.T, s Backend, balances map[string]string) {
	t.Helper()
	for name, bal := range balances {
		require.NoError(t, s.CreateAccount(context.Background(), name, money(bal)))
	}
}

func insert(t *testing.T, s Backend, tx wallet.Transaction) wallet.Transaction {
	t.Helper()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	}
	require.NoError(t, s.InsertTransaction(context.Background(), &tx))
	require.NotZero(t, tx.ID)
	return tx
}

func transfer(sender, receiver, amount string) wallet.Transfer {
	return wallet.Transfer{Sender: sender, Receiver: receiver, Amount: money(amount)}
}

func at(day int) *time.Time {
	t := time.Date(2025, time.March, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func ids(txs []wallet.Transaction) []int64 {
	out := make([]int64, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func testAccounts(t *testing.T, s Backend) {
	ctx := context.Background()
	seed(t, s, map[string]string{"alice": "100.00"})

	err := s.CreateAccount(ctx, "alice", decimal.Zero)
	assert.ErrorIs(t, err, wallet.ErrAccountExists)

	acc, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, money("100.00").Equal(acc.Balance))
	assert.False(t, acc.IsBlocked)

	require.NoError(t, s.SetBlocked(ctx, "alice", true))
	acc, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acc.IsBlocked)

	acc.Balance = money("42.50")
	require.NoError(t, s.SaveAccount(ctx, acc))
	acc, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "42.50", wallet.FormatMoney(acc.Balance))

	_, err = s.GetAccount(ctx, "nobody")
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	assert.ErrorIs(t, s.SetBlocked(ctx, "nobody", true), wallet.ErrNotFound)
	assert.ErrorIs(t, s.SaveAccount(ctx, &wallet.Account{Username: "nobody"}), wallet.ErrNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testTransactionRoundTrip(t *testing.T, s Backend) {
	ctx := context.Background()
	seed(t, s, map[string]string{"alice": "100.00", "bob": "0.00"})

	category := int64(7)
	description := "rent"
	tx := insert(t, s, wallet.Transaction{
		Transfer: wallet.Transfer{
			Sender:      "alice",
			Receiver:    "bob",
			Amount:      money("30.25"),
			CategoryID:  &category,
			Description: &description,
		},
		Status: wallet.StatusDraft,
	})

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "bob", got.Receiver)
	assert.Equal(t, "30.25", wallet.FormatMoney(got.Amount))
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, category, *got.CategoryID)
	require.NotNil(t, got.Description)
	assert.Equal(t, description, *got.Description)
	assert.Equal(t, wallet.StatusDraft, got.Status)
	assert.Nil(t, got.TransactionDate)
	assert.Nil(t, got.RecurringID)
	assert.True(t, tx.CreatedAt.Equal(got.CreatedAt))

	got.Status = wallet.StatusCompleted
	got.TransactionDate = at(5)
	got.IsFlagged = true
	got.Description = nil
	require.NoError(t, s.UpdateTransaction(ctx, got))

	again, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusCompleted, again.Status)
	require.NotNil(t, again.TransactionDate)
	assert.True(t, at(5).Equal(*again.TransactionDate))
	assert.True(t, again.IsFlagged)
	assert.Nil(t, again.Description)

	_, err = s.GetTransaction(ctx, tx.ID+100)
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTransaction(ctx, &wallet.Transaction{ID: tx.ID + 100}), wallet.ErrNotFound)
}

func testStatusGuards(t *testing.T, s Backend) {
	ctx := context.Background()
	seed(t, s, map[string]string{"alice": "100.00", "bob": "0.00"})

	draft := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "bob", "10.00"), Status: wallet.StatusDraft})
	pending := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "bob", "10.00"), Status: wallet.StatusPending})

	_, err := s.GetDraft(ctx, draft.ID, "alice")
	assert.NoError(t, err)
	_, err = s.GetDraft(ctx, draft.ID, "bob")
	assert.ErrorIs(t, err, wallet.ErrNotFound, "draft is owned by its sender")
	_, err = s.GetDraft(ctx, pending.ID, "alice")
	assert.ErrorIs(t, err, wallet.ErrNotFound, "pending entry is not a draft")

	_, err = s.GetPendingIncoming(ctx, pending.ID, "bob")
	assert.NoError(t, err)
	_, err = s.GetPendingIncoming(ctx, pending.ID, "alice")
	assert.ErrorIs(t, err, wallet.ErrNotFound, "sender cannot act as receiver")
	_, err = s.GetPendingIncoming(ctx, draft.ID, "bob")
	assert.ErrorIs(t, err, wallet.ErrNotFound, "draft is not pending")
}

func testDeleteTransaction(t *testing.T, s Backend) {
	ctx := context.Background()
	seed(t, s, map[string]string{"alice": "100.00", "bob": "0.00"})

	tx := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "bob", "10.00"), Status: wallet.StatusDraft})
	require.NoError(t, s.DeleteTransaction(ctx, tx.ID))

	_, err := s.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTransaction(ctx, tx.ID), wallet.ErrNotFound)
}

func testRollbackOnError(t *testing.T, s Backend) {
	ctx := context.Background()
	seed(t, s, map[string]string{"alice": "100.00", "bob": "0.00"})
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx wallet.Tx) error {
		acc, err := tx.GetAccount(ctx, "alice")
		if err != nil {
			return err
		}
		acc.Balance = acc.Balance.Sub(money("60.00"))
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}
		entry := &wallet.Transaction{Transfer: transfer("alice", "bob", "60.00"), Status: wallet.StatusPending, CreatedAt: time.Now()}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "100.00", wallet.FormatMoney(acc.Balance), "balance write rolled back")
	txs, err := s.ListTransactions(ctx, wallet.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs, "insert rolled back")

	err = s.WithTx(ctx, func(tx wallet.Tx) error {
		acc, err := tx.GetAccount(ctx, "alice")
		if err != nil {
			return err
		}
		acc.Balance = acc.Balance.Sub(money("60.00"))
		return tx.SaveAccount(ctx, acc)
	})
	require.NoError(t, err)
	acc, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "40.00", wallet.FormatMoney(acc.Balance))
}

func testListTransactionsFilters(t *testing.T, s Backend) {
	ctx := context.Background()
	seed(t, s, map[string]string{"alice": "0.00", "bob": "0.00", "carol": "0.00"})

	ab := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "bob", "10.00"), Status: wallet.StatusCompleted})
	ba := insert(t, s, wallet.Transaction{Transfer: transfer("bob", "alice", "20.00"), Status: wallet.StatusPending})
	ac := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "carol", "30.00"), Status: wallet.StatusCompleted, IsFlagged: true})
	cb := insert(t, s, wallet.Transaction{Transfer: transfer("carol", "bob", "40.00"), Status: wallet.StatusDraft})

	flagged := true
	tests := []struct {
		name   string
		filter wallet.TransactionFilter
		want   []int64
	}{
		{"all", wallet.TransactionFilter{}, []int64{ab.ID, ba.ID, ac.ID, cb.ID}},
		{"sender", wallet.TransactionFilter{Sender: "alice"}, []int64{ab.ID, ac.ID}},
		{"receiver", wallet.TransactionFilter{Receiver: "bob"}, []int64{ab.ID, cb.ID}},
		{"party", wallet.TransactionFilter{Party: "alice"}, []int64{ab.ID, ba.ID, ac.ID}},
		{"party and counterparty", wallet.TransactionFilter{Party: "alice", Counterparty: "bob"}, []int64{ab.ID, ba.ID}},
		{"status", wallet.TransactionFilter{Status: wallet.StatusCompleted}, []int64{ab.ID, ac.ID}},
		{"flagged", wallet.TransactionFilter{Flagged: &flagged}, []int64{ac.ID}},
		{"combined", wallet.TransactionFilter{Sender: "alice", Status: wallet.StatusCompleted, Receiver: "carol"}, []int64{ac.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTransactions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func testListTransactionsSortAndPaging(t *testing.T, s Backend) {
	ctx := context.Background()
	seed(t, s, map[string]string{"alice": "0.00", "bob": "0.00"})

	t1 := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "bob", "50.00"), Status: wallet.StatusCompleted, TransactionDate: at(3)})
	t2 := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "bob", "9.99"), Status: wallet.StatusPending})
	t3 := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "bob", "100.00"), Status: wallet.StatusCompleted, TransactionDate: at(1)})
	t4 := insert(t, s, wallet.Transaction{Transfer: transfer("alice", "bob", "9.99"), Status: wallet.StatusDeclined, TransactionDate: at(2)})

	tests := []struct {
		name   string
		filter wallet.TransactionFilter
		want   []int64
	}{
		{"default by id", wallet.TransactionFilter{}, []int64{t1.ID, t2.ID, t3.ID, t4.ID}},
		{"date asc puts undated first", wallet.TransactionFilter{Sort: wallet.SortDateAsc}, []int64{t2.ID, t3.ID, t4.ID, t1.ID}},
		{"date desc puts undated last", wallet.TransactionFilter{Sort: wallet.SortDateDesc}, []int64{t1.ID, t4.ID, t3.ID, t2.ID}},
		{"amount asc compares numerically", wallet.TransactionFilter{Sort: wallet.SortAmountAsc}, []int64{t2.ID, t4.ID, t1.ID, t3.ID}},
		{"amount desc", wallet.TransactionFilter{Sort: wallet.SortAmountDesc}, []int64{t3.ID, t1.ID, t2.ID, t4.ID}},
		{"first page", wallet.TransactionFilter{Page: 1, Limit: 3}, []int64{t1.ID, t2.ID, t3.ID}},
		{"second page", wallet.TransactionFilter{Page: 2, Limit: 3}, []int64{t4.ID}},
		{"past the end", wallet.TransactionFilter{Page: 3, Limit: 3}, []int64{}},
		{"sorted page", wallet.TransactionFilter{Sort: wallet.SortAmountDesc, Page: 2, Limit: 2}, []int64{t2.ID, t4.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTransactions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

// =============================================================================
// RECURRING
// =============================================================================

func testRecurringLifecycle(t *testing.T, s Backend) {
	ctx := context.Background()
	seed(t, s, map[string]string{"alice": "100.00", "bob": "0.00"})

	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	r := &wallet.RecurringTransaction{
		Transfer:   transfer("alice", "bob", "20.00"),
		Interval:   wallet.IntervalCustom,
		CustomDays: 3,
		StartDate:  start,
		Status:     wallet.RecurringOngoing,
		IsActive:   true,
		CreatedAt:  start,
	}
	require.NoError(t, s.InsertRecurring(ctx, r))
	require.NotZero(t, r.ID)

	r.JobID = wallet.JobID(r.ID)
	require.NoError(t, s.UpdateRecurring(ctx, r))

	got, err := s.GetRecurring(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.IntervalCustom, got.Interval)
	assert.Equal(t, 3, got.CustomDays)
	assert.True(t, start.Equal(got.StartDate))
	assert.Equal(t, wallet.JobID(r.ID), got.JobID)
	assert.Equal(t, "20.00", wallet.FormatMoney(got.Amount))

	_, err = s.GetOngoingRecurring(ctx, r.ID, "alice")
	assert.NoError(t, err)
	_, err = s.GetOngoingRecurring(ctx, r.ID, "bob")
	assert.ErrorIs(t, err, wallet.ErrNotFound, "only the sender owns the entry")

	spawned := insert(t, s, wallet.Transaction{
		Transfer:        transfer("alice", "bob", "20.00"),
		Status:          wallet.StatusCompleted,
		TransactionDate: at(1),
		RecurringID:     &r.ID,
	})
	back, err := s.GetTransaction(ctx, spawned.ID)
	require.NoError(t, err)
	require.NotNil(t, back.RecurringID)
	assert.Equal(t, r.ID, *back.RecurringID)

	other := &wallet.RecurringTransaction{
		Transfer:  transfer("bob", "alice", "1.00"),
		Interval:  wallet.IntervalDaily,
		StartDate: start,
		Status:    wallet.RecurringOngoing,
		IsActive:  true,
		CreatedAt: start,
	}
	require.NoError(t, s.InsertRecurring(ctx, other))

	all, err := s.ListRecurring(ctx, "", wallet.RecurringOngoing)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	mine, err := s.ListRecurring(ctx, "alice", wallet.RecurringOngoing)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, r.ID, mine[0].ID)

	got.Status = wallet.RecurringCancelled
	got.IsActive = false
	require.NoError(t, s.UpdateRecurring(ctx, got))

	_, err = s.GetOngoingRecurring(ctx, r.ID, "alice")
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	mine, err = s.ListRecurring(ctx, "alice", wallet.RecurringOngoing)
	require.NoError(t, err)
	assert.Empty(t, mine)
	cancelled, err := s.ListRecurring(ctx, "alice", wallet.RecurringCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.False(t, cancelled[0].IsActive)

	_, err = s.GetRecurring(ctx, r.ID+100)
	assert.ErrorIs(t, err, wallet.ErrNotFound)
}
