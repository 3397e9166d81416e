package wallet_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/virtual-wallet/wallet"
)

// =============================================================================
// DRAFTS
// =============================================================================

func TestCreateDraft(t *testing.T) {
	// GIVEN: alice with 100.00 and bob with 50.00
	// WHEN: alice drafts 30.00 to bob
	// THEN: A draft exists and no balance moved

	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "50.00"})
	desc := "rent"
	tx, err := f.ledger.CreateDraft(context.Background(), "alice", wallet.TransferRequest{
		Receiver:    "bob",
		Amount:      money("30.00"),
		Description: &desc,
	})
	require.NoError(t, err)

	assert.NotZero(t, tx.ID)
	assert.Equal(t, wallet.StatusDraft, tx.Status)
	assert.Nil(t, tx.TransactionDate)
	assert.True(t, testNow.Equal(tx.CreatedAt))

	stored := f.transaction(t, tx.ID)
	assert.Equal(t, "alice", stored.Sender)
	assert.Equal(t, "bob", stored.Receiver)
	require.NotNil(t, stored.Description)
	assert.Equal(t, "rent", *stored.Description)

	assert.Equal(t, "100.00", f.balance(t, "alice"))
	assert.Equal(t, "50.00", f.balance(t, "bob"))
}

func TestCreateDraft_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		receiver string
		amount   string
		want     error
	}{
		{"zero amount", "alice", "bob", "0", wallet.ErrInvalidAmount},
		{"negative amount", "alice", "bob", "-5.00", wallet.ErrInvalidAmount},
		{"three decimals", "alice", "bob", "1.005", wallet.ErrInvalidAmount},
		{"too large", "alice", "bob", "100000000.00", wallet.ErrInvalidAmount},
		{"self transfer", "alice", "alice", "1.00", wallet.ErrSelfTransfer},
		{"unknown receiver", "alice", "nobody", "1.00", wallet.ErrNotFound},
		{"unknown sender", "ghost", "bob", "1.00", wallet.ErrNotFound},
		{"blocked sender", "mallory", "bob", "1.00", wallet.ErrAccountBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0", "mallory": "100.00"})
			require.NoError(t, f.store.SetBlocked(context.Background(), "mallory", true))

			_, err := f.ledger.CreateDraft(context.Background(), tt.sender, wallet.TransferRequest{
				Receiver: tt.receiver,
				Amount:   money(tt.amount),
			})
			assert.ErrorIs(t, err, tt.want)

			all, err := f.store.ListTransactions(context.Background(), wallet.TransactionFilter{})
			require.NoError(t, err)
			assert.Empty(t, all, "nothing persisted")
		})
	}
}

func TestCreateDraft_BoundaryAmounts(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "0", "bob": "0"})

	for _, amount := range []string{"0.01", "99999999.99"} {
		tx := f.draft(t, "alice", "bob", amount)
		assert.Equal(t, amount, wallet.FormatMoney(tx.Amount))
	}
}

func TestNewTransfers_LockAccountsInUsernameOrder(t *testing.T) {
	// GIVEN: Transfers in both directions between alice and bob
	// WHEN: Creating drafts and recurring entries, and firing a recurring job
	// THEN: Every unit of work reads alice before bob, whoever is sending

	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "100.00"})
	ctx := context.Background()
	readsOf := func(step func()) []string {
		before := len(f.store.accountReads())
		step()
		return f.store.accountReads()[before:]
	}

	assert.Equal(t, []string{"alice", "bob"}, readsOf(func() { f.draft(t, "bob", "alice", "1.00") }))
	assert.Equal(t, []string{"alice", "bob"}, readsOf(func() { f.draft(t, "alice", "bob", "1.00") }))

	var r *wallet.RecurringTransaction
	assert.Equal(t, []string{"alice", "bob"}, readsOf(func() {
		var err error
		r, err = f.ledger.CreateRecurring(ctx, "bob", recurringRequest("alice", "2.00", wallet.IntervalDaily))
		require.NoError(t, err)
	}))
	assert.Equal(t, []string{"alice", "bob"}, readsOf(func() { f.sched.fire(t, r.JobID) }))
	assert.Equal(t, "102.00", f.balance(t, "alice"))
}

func TestUpdateDraft(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0", "carol": "0"})
	tx := f.draft(t, "alice", "bob", "10.00")

	updated, err := f.ledger.UpdateDraft(context.Background(), "alice", tx.ID, wallet.TransferRequest{
		Receiver: "carol",
		Amount:   money("12.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", updated.Receiver)
	assert.Equal(t, wallet.StatusDraft, updated.Status)

	stored := f.transaction(t, tx.ID)
	assert.Equal(t, "carol", stored.Receiver)
	assert.Equal(t, "12.50", wallet.FormatMoney(stored.Amount))
	assert.Equal(t, "100.00", f.balance(t, "alice"))
}

func TestUpdateDraft_Rejected(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	draft := f.draft(t, "alice", "bob", "10.00")
	pending := f.pending(t, "alice", "bob", "5.00")
	ctx := context.Background()

	_, err := f.ledger.UpdateDraft(ctx, "alice", draft.ID, wallet.TransferRequest{Receiver: "alice", Amount: money("1.00")})
	assert.ErrorIs(t, err, wallet.ErrSelfTransfer)

	_, err = f.ledger.UpdateDraft(ctx, "alice", draft.ID, wallet.TransferRequest{Receiver: "bob", Amount: money("0")})
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)

	_, err = f.ledger.UpdateDraft(ctx, "bob", draft.ID, wallet.TransferRequest{Receiver: "alice", Amount: money("1.00")})
	assert.ErrorIs(t, err, wallet.ErrNotFound, "only the sender may edit")

	_, err = f.ledger.UpdateDraft(ctx, "alice", pending.ID, wallet.TransferRequest{Receiver: "bob", Amount: money("1.00")})
	assert.ErrorIs(t, err, wallet.ErrNotFound, "pending entries are frozen")

	assert.Equal(t, "10.00", wallet.FormatMoney(f.transaction(t, draft.ID).Amount))
}

func TestDeleteDraft(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	draft := f.draft(t, "alice", "bob", "10.00")
	pending := f.pending(t, "alice", "bob", "5.00")
	ctx := context.Background()

	assert.ErrorIs(t, f.ledger.DeleteDraft(ctx, "bob", draft.ID), wallet.ErrNotFound)
	require.NoError(t, f.ledger.DeleteDraft(ctx, "alice", draft.ID))

	_, err := f.store.GetTransaction(ctx, draft.ID)
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	assert.ErrorIs(t, f.ledger.DeleteDraft(ctx, "alice", draft.ID), wallet.ErrNotFound)

	assert.ErrorIs(t, f.ledger.DeleteDraft(ctx, "alice", pending.ID), wallet.ErrNotFound)
	assert.Equal(t, wallet.StatusPending, f.transaction(t, pending.ID).Status)
	assert.Equal(t, "95.00", f.balance(t, "alice"))
}

// =============================================================================
// CONFIRM
// =============================================================================

func TestConfirmDraft_DebitsSender(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "50.00"})
	tx := f.draft(t, "alice", "bob", "30.00")

	confirmed, err := f.ledger.ConfirmDraft(context.Background(), "alice", tx.ID)
	require.NoError(t, err)

	assert.Equal(t, wallet.StatusPending, confirmed.Status)
	assert.Equal(t, wallet.StatusPending, f.transaction(t, tx.ID).Status)
	assert.Equal(t, "70.00", f.balance(t, "alice"))
	assert.Equal(t, "50.00", f.balance(t, "bob"), "receiver is credited on accept")
}

func TestConfirmDraft_ExactBalance(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "30.00", "bob": "0"})
	tx := f.draft(t, "alice", "bob", "30.00")

	_, err := f.ledger.ConfirmDraft(context.Background(), "alice", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", f.balance(t, "alice"))
}

func TestConfirmDraft_InsufficientFunds(t *testing.T) {
	// GIVEN: alice with 20.00 and a 30.00 draft
	// WHEN: alice confirms
	// THEN: The call fails with the shortage and nothing changes

	f := newFixture(t, map[string]string{"alice": "20.00", "bob": "0"})
	tx := f.draft(t, "alice", "bob", "30.00")

	_, err := f.ledger.ConfirmDraft(context.Background(), "alice", tx.ID)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	var funds *wallet.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, "alice", funds.Account)
	assert.Equal(t, "20.00", wallet.FormatMoney(funds.Available))
	assert.Equal(t, "30.00", wallet.FormatMoney(funds.Requested))

	assert.Equal(t, wallet.StatusDraft, f.transaction(t, tx.ID).Status)
	assert.Equal(t, "20.00", f.balance(t, "alice"))
}

func TestConfirmDraft_OnlyOnce(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	tx := f.draft(t, "alice", "bob", "30.00")
	ctx := context.Background()

	_, err := f.ledger.ConfirmDraft(ctx, "bob", tx.ID)
	assert.ErrorIs(t, err, wallet.ErrNotFound, "only the sender may confirm")

	_, err = f.ledger.ConfirmDraft(ctx, "alice", tx.ID)
	require.NoError(t, err)
	_, err = f.ledger.ConfirmDraft(ctx, "alice", tx.ID)
	assert.ErrorIs(t, err, wallet.ErrNotFound)

	assert.Equal(t, "70.00", f.balance(t, "alice"))
}

func TestConfirmDraft_ConcurrentConfirmsDebitOnce(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	tx := f.draft(t, "alice", "bob", "30.00")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.ConfirmDraft(context.Background(), "alice", tx.ID); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, "70.00", f.balance(t, "alice"))
}

// =============================================================================
// ACCEPT / DECLINE
// =============================================================================

func TestAcceptIncoming(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "50.00"})
	tx := f.pending(t, "alice", "bob", "30.00")

	balance, err := f.ledger.AcceptIncoming(context.Background(), "bob", tx.ID)
	require.NoError(t, err)

	assert.Equal(t, "80.00", wallet.FormatMoney(balance))
	assert.Equal(t, "80.00", f.balance(t, "bob"))
	assert.Equal(t, "70.00", f.balance(t, "alice"))

	stored := f.transaction(t, tx.ID)
	assert.Equal(t, wallet.StatusCompleted, stored.Status)
	require.NotNil(t, stored.TransactionDate)
	assert.True(t, testNow.Equal(*stored.TransactionDate))
	assert.Empty(t, f.notifier.all())
}

func TestAcceptIncoming_Rejected(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0", "carol": "0"})
	draft := f.draft(t, "alice", "bob", "10.00")
	pending := f.pending(t, "alice", "bob", "10.00")
	ctx := context.Background()

	_, err := f.ledger.AcceptIncoming(ctx, "bob", draft.ID)
	assert.ErrorIs(t, err, wallet.ErrNotFound, "drafts cannot be accepted")

	_, err = f.ledger.AcceptIncoming(ctx, "carol", pending.ID)
	assert.ErrorIs(t, err, wallet.ErrNotFound, "only the receiver may accept")

	_, err = f.ledger.AcceptIncoming(ctx, "alice", pending.ID)
	assert.ErrorIs(t, err, wallet.ErrNotFound, "the sender cannot accept")

	_, err = f.ledger.AcceptIncoming(ctx, "bob", pending.ID)
	require.NoError(t, err)
	_, err = f.ledger.AcceptIncoming(ctx, "bob", pending.ID)
	assert.ErrorIs(t, err, wallet.ErrNotFound, "accept is not repeatable")
	assert.ErrorIs(t, f.ledger.DeclineIncoming(ctx, "bob", pending.ID), wallet.ErrNotFound, "completed never goes back")

	assert.Equal(t, "10.00", f.balance(t, "bob"))
}

func TestDeclineIncoming(t *testing.T) {
	// GIVEN: A pending 30.00 transfer from alice to bob
	// WHEN: bob declines it
	// THEN: alice is refunded and told exactly once

	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	tx := f.pending(t, "alice", "bob", "30.00")

	require.NoError(t, f.ledger.DeclineIncoming(context.Background(), "bob", tx.ID))

	assert.Equal(t, "100.00", f.balance(t, "alice"))
	assert.Equal(t, "0.00", f.balance(t, "bob"))

	stored := f.transaction(t, tx.ID)
	assert.Equal(t, wallet.StatusDeclined, stored.Status)
	require.NotNil(t, stored.TransactionDate)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].user)
	require.NotNil(t, sent[0].transaction)
	assert.Equal(t, tx.ID, sent[0].transaction.ID)
	assert.Equal(t, wallet.StatusDeclined, sent[0].transaction.Status)

	assert.ErrorIs(t, f.ledger.DeclineIncoming(context.Background(), "bob", tx.ID), wallet.ErrNotFound)
	assert.Len(t, f.notifier.all(), 1)
	assert.Equal(t, "100.00", f.balance(t, "alice"))
}

func TestDeclineIncoming_NotifierFailureIsIgnored(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	f.notifier.err = errors.New("smtp down")
	tx := f.pending(t, "alice", "bob", "30.00")

	require.NoError(t, f.ledger.DeclineIncoming(context.Background(), "bob", tx.ID))
	assert.Equal(t, wallet.StatusDeclined, f.transaction(t, tx.ID).Status)
	assert.Equal(t, "100.00", f.balance(t, "alice"))
}

// =============================================================================
// DENY
// =============================================================================

func TestDenyTransaction(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	tx := f.pending(t, "alice", "bob", "40.00")

	require.NoError(t, f.ledger.DenyTransaction(context.Background(), tx.ID))

	assert.Equal(t, wallet.StatusDenied, f.transaction(t, tx.ID).Status)
	assert.Equal(t, "100.00", f.balance(t, "alice"))
	assert.Equal(t, "0.00", f.balance(t, "bob"))

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].user)
	assert.Equal(t, wallet.StatusDenied, sent[0].transaction.Status)
}

func TestDenyTransaction_Rejected(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	draft := f.draft(t, "alice", "bob", "10.00")
	completed := f.pending(t, "alice", "bob", "10.00")
	_, err := f.ledger.AcceptIncoming(context.Background(), "bob", completed.ID)
	require.NoError(t, err)
	ctx := context.Background()

	err = f.ledger.DenyTransaction(ctx, draft.ID)
	assert.ErrorIs(t, err, wallet.ErrInvalidState)
	var transition *wallet.TransitionError
	require.True(t, errors.As(err, &transition))
	assert.Equal(t, wallet.StatusDraft, transition.From)
	assert.Equal(t, wallet.StatusDenied, transition.To)

	assert.ErrorIs(t, f.ledger.DenyTransaction(ctx, completed.ID), wallet.ErrInvalidState)
	assert.ErrorIs(t, f.ledger.DenyTransaction(ctx, 9999), wallet.ErrNotFound)

	assert.Equal(t, "90.00", f.balance(t, "alice"))
	assert.Equal(t, "10.00", f.balance(t, "bob"))
	assert.Empty(t, f.notifier.all())
}

// =============================================================================
// ATOMICITY
// =============================================================================

func TestConfirmDraft_StorageFailureRollsBack(t *testing.T) {
	// GIVEN: A store whose status write fails
	// WHEN: alice confirms a draft
	// THEN: The debit is rolled back with the status write

	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	tx := f.draft(t, "alice", "bob", "30.00")
	f.store.failUpdate = true

	_, err := f.ledger.ConfirmDraft(context.Background(), "alice", tx.ID)
	require.ErrorIs(t, err, wallet.ErrDatabase)
	assert.ErrorIs(t, err, errInjected)
	assert.False(t, wallet.IsClientError(err))

	f.store.failUpdate = false
	assert.Equal(t, "100.00", f.balance(t, "alice"))
	assert.Equal(t, wallet.StatusDraft, f.transaction(t, tx.ID).Status)
}

func TestDeclineIncoming_StorageFailureSendsNothing(t *testing.T) {
	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "0"})
	tx := f.pending(t, "alice", "bob", "30.00")
	f.store.failCommit = true

	err := f.ledger.DeclineIncoming(context.Background(), "bob", tx.ID)
	require.ErrorIs(t, err, wallet.ErrDatabase)

	f.store.failCommit = false
	assert.Equal(t, "70.00", f.balance(t, "alice"))
	assert.Equal(t, wallet.StatusPending, f.transaction(t, tx.ID).Status)
	assert.Empty(t, f.notifier.all())
}

func TestMoneyIsConserved(t *testing.T) {
	// GIVEN: Three accounts holding 300.00 in total
	// WHEN: A mix of confirms, accepts, declines and denies runs
	// THEN: Balances plus in-flight amounts always add up to 300.00

	f := newFixture(t, map[string]string{"alice": "100.00", "bob": "100.00", "carol": "100.00"})
	ctx := context.Background()

	total := func() string {
		sum := money("0")
		for _, name := range []string{"alice", "bob", "carol"} {
			account, err := f.store.GetAccount(ctx, name)
			require.NoError(t, err)
			sum = sum.Add(account.Balance)
		}
		pending, err := f.store.ListTransactions(ctx, wallet.TransactionFilter{Status: wallet.StatusPending})
		require.NoError(t, err)
		for _, tx := range pending {
			sum = sum.Add(tx.Amount)
		}
		return wallet.FormatMoney(sum)
	}

	a := f.pending(t, "alice", "bob", "25.50")
	assert.Equal(t, "300.00", total())
	b := f.pending(t, "bob", "carol", "99.99")
	assert.Equal(t, "300.00", total())
	c := f.pending(t, "carol", "alice", "0.01")
	assert.Equal(t, "300.00", total())

	_, err := f.ledger.AcceptIncoming(ctx, "bob", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00", total())
	require.NoError(t, f.ledger.DeclineIncoming(ctx, "carol", b.ID))
	assert.Equal(t, "300.00", total())
	require.NoError(t, f.ledger.DenyTransaction(ctx, c.ID))
	assert.Equal(t, "300.00", total())

	assert.Equal(t, "74.50", f.balance(t, "alice"))
	assert.Equal(t, "125.50", f.balance(t, "bob"))
	assert.Equal(t, "100.00", f.balance(t, "carol"))
}
