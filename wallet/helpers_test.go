package wallet_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/virtual-wallet/wallet"
	"github.com/warp/virtual-wallet/wallet/store"
)

var testNow = time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// FIXTURE
// =============================================================================

type fixture struct {
	ledger   *wallet.Ledger
	store    *failingStore
	sched    *fakeScheduler
	notifier *recordingNotifier
}

// newFixture builds a ledger over an in-memory store seeded with balances.
func newFixture(t *testing.T, balances map[string]string) *fixture {
	t.Helper()
	mem := store.NewMemory()
	for name, balance := range balances {
		require.NoError(t, mem.CreateAccount(context.Background(), name, money(balance)))
	}
	f := &fixture{
		store:    &failingStore{Memory: mem},
		sched:    newFakeScheduler(),
		notifier: &recordingNotifier{},
	}
	f.ledger = f.newLedger(f.sched)
	return f
}

func (f *fixture) newLedger(sched wallet.Scheduler) *wallet.Ledger {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return wallet.NewLedger(f.store, sched, f.notifier, logger, wallet.WithClock(func() time.Time { return testNow }))
}

func (f *fixture) balance(t *testing.T, username string) string {
	t.Helper()
	account, err := f.store.GetAccount(context.Background(), username)
	require.NoError(t, err)
	return wallet.FormatMoney(account.Balance)
}

func (f *fixture) transaction(t *testing.T, id int64) *wallet.Transaction {
	t.Helper()
	tx, err := f.store.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx
}

// draft creates a draft from sender to receiver.
func (f *fixture) draft(t *testing.T, sender, receiver, amount string) *wallet.Transaction {
	t.Helper()
	tx, err := f.ledger.CreateDraft(context.Background(), sender, wallet.TransferRequest{
		Receiver: receiver,
		Amount:   money(amount),
	})
	require.NoError(t, err)
	return tx
}

// pending creates and confirms a draft.
func (f *fixture) pending(t *testing.T, sender, receiver, amount string) *wallet.Transaction {
	t.Helper()
	tx := f.draft(t, sender, receiver, amount)
	confirmed, err := f.ledger.ConfirmDraft(context.Background(), sender, tx.ID)
	require.NoError(t, err)
	return confirmed
}

// =============================================================================
// FAILING STORE
// =============================================================================

var errInjected = errors.New("injected storage failure")

// failingStore wraps the memory store and fails selected writes on demand.
type failingStore struct {
	*store.Memory
	failUpdate bool
	failCommit bool

	mu    sync.Mutex
	reads []string
}

// accountReads returns the usernames read inside units of work, in order.
func (s *failingStore) accountReads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reads...)
}

func (s *failingStore) WithTx(ctx context.Context, fn func(wallet.Tx) error) error {
	return s.Memory.WithTx(ctx, func(tx wallet.Tx) error {
		if err := fn(&failingTx{Tx: tx, store: s}); err != nil {
			return err
		}
		if s.failCommit {
			return errInjected
		}
		return nil
	})
}

type failingTx struct {
	wallet.Tx
	store *failingStore
}

func (t *failingTx) GetAccount(ctx context.Context, username string) (*wallet.Account, error) {
	t.store.mu.Lock()
	t.store.reads = append(t.store.reads, username)
	t.store.mu.Unlock()
	return t.Tx.GetAccount(ctx, username)
}

func (t *failingTx) UpdateTransaction(ctx context.Context, tx *wallet.Transaction) error {
	if t.store.failUpdate {
		return errInjected
	}
	return t.Tx.UpdateTransaction(ctx, tx)
}

// =============================================================================
// FAKE SCHEDULER
// =============================================================================

type scheduledJob struct {
	run wallet.JobFunc
	job wallet.Job
}

type fakeScheduler struct {
	mu      sync.Mutex
	jobs    map[string]scheduledJob
	addErr  error
	removes int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]scheduledJob)}
}

func (s *fakeScheduler) AddJob(run wallet.JobFunc, job wallet.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.jobs[job.ID] = scheduledJob{run: run, job: job}
	return nil
}

func (s *fakeScheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	if _, ok := s.jobs[id]; !ok {
		return wallet.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *fakeScheduler) NextRunTime(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return time.Time{}, false
	}
	return j.job.Start, true
}

func (s *fakeScheduler) get(id string) (wallet.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j.job, ok
}

func (s *fakeScheduler) removeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removes
}

func (s *fakeScheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// fire runs a registered job body the way the scheduler would.
func (s *fakeScheduler) fire(t *testing.T, id string) {
	t.Helper()
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	require.True(t, ok, "job %s not registered", id)
	j.run(context.Background(), j.job.Payload)
}

// =============================================================================
// RECORDING NOTIFIER
// =============================================================================

type notification struct {
	user        string
	transaction *wallet.Transaction
	recurring   *wallet.RecurringPayload
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []notification
	err    error
	panics bool
}

func (n *recordingNotifier) NotifyDeclined(_ context.Context, user string, tx wallet.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{user: user, transaction: &tx})
	return n.err
}

func (n *recordingNotifier) NotifyRecurringFailed(_ context.Context, user string, payload wallet.RecurringPayload) error {
	if n.panics {
		panic("notifier exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{user: user, recurring: &payload})
	return n.err
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}
