// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/virtual-wallet/wallet"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps. WithTx holds the write lock for the whole
// unit of work and restores a snapshot when the function fails, which gives
// the same all-or-nothing behaviour as a database transaction.
type Memory struct {
	mu   sync.RWMutex
	data *memoryData
}

type memoryData struct {
	accounts     map[string]wallet.Account
	transactions map[int64]wallet.Transaction
	recurring    map[int64]wallet.RecurringTransaction
	nextTxID     int64
	nextRecID    int64
}

func NewMemory() *Memory {
	return &Memory{data: &memoryData{
		accounts:     make(map[string]wallet.Account),
		transactions: make(map[int64]wallet.Transaction),
		recurring:    make(map[int64]wallet.RecurringTransaction),
	}}
}

// CreateAccount registers an account with an opening balance.
func (m *Memory) CreateAccount(_ context.Context, username string, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.accounts[username]; ok {
		return fmt.Errorf("%s: %w", username, wallet.ErrAccountExists)
	}
	m.data.accounts[username] = wallet.Account{Username: username, Balance: balance}
	return nil
}

// SetBlocked flips the block flag of an account.
func (m *Memory) SetBlocked(_ context.Context, username string, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.data.accounts[username]
	if !ok {
		return fmt.Errorf("account %s: %w", username, wallet.ErrNotFound)
	}
	acc.IsBlocked = blocked
	m.data.accounts[username] = acc
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn within a simulated transaction.
func (m *Memory) WithTx(_ context.Context, fn func(wallet.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&memoryView{data: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		accounts:     make(map[string]wallet.Account, len(d.accounts)),
		transactions: make(map[int64]wallet.Transaction, len(d.transactions)),
		recurring:    make(map[int64]wallet.RecurringTransaction, len(d.recurring)),
		nextTxID:     d.nextTxID,
		nextRecID:    d.nextRecID,
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.recurring {
		c.recurring[k] = v
	}
	return c
}

// =============================================================================
// LOCKED ACCESS - outside any unit of work
// =============================================================================

func (m *Memory) read() *memoryView {
	return &memoryView{data: m.data}
}

func (m *Memory) GetAccount(ctx context.Context, username string) (*wallet.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetAccount(ctx, username)
}

func (m *Memory) SaveAccount(ctx context.Context, account *wallet.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SaveAccount(ctx, account)
}

func (m *Memory) InsertTransaction(ctx context.Context, tx *wallet.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().InsertTransaction(ctx, tx)
}

func (m *Memory) GetTransaction(ctx context.Context, id int64) (*wallet.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetTransaction(ctx, id)
}

func (m *Memory) GetDraft(ctx context.Context, id int64, owner string) (*wallet.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetDraft(ctx, id, owner)
}

func (m *Memory) GetPendingIncoming(ctx context.Context, id int64, receiver string) (*wallet.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetPendingIncoming(ctx, id, receiver)
}

func (m *Memory) UpdateTransaction(ctx context.Context, tx *wallet.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdateTransaction(ctx, tx)
}

func (m *Memory) DeleteTransaction(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().DeleteTransaction(ctx, id)
}

func (m *Memory) ListTransactions(ctx context.Context, filter wallet.TransactionFilter) ([]wallet.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListTransactions(ctx, filter)
}

func (m *Memory) InsertRecurring(ctx context.Context, r *wallet.RecurringTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().InsertRecurring(ctx, r)
}

func (m *Memory) GetRecurring(ctx context.Context, id int64) (*wallet.RecurringTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetRecurring(ctx, id)
}

func (m *Memory) GetOngoingRecurring(ctx context.Context, id int64, owner string) (*wallet.RecurringTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetOngoingRecurring(ctx, id, owner)
}

func (m *Memory) UpdateRecurring(ctx context.Context, r *wallet.RecurringTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdateRecurring(ctx, r)
}

func (m *Memory) ListRecurring(ctx context.Context, owner string, status wallet.RecurringStatus) ([]wallet.RecurringTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListRecurring(ctx, owner, status)
}

// =============================================================================
// VIEW - unlocked access, callers hold the lock
// =============================================================================

type memoryView struct {
	data *memoryData
}

func (v *memoryView) GetAccount(_ context.Context, username string) (*wallet.Account, error) {
	acc, ok := v.data.accounts[username]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", username, wallet.ErrNotFound)
	}
	return &acc, nil
}

func (v *memoryView) SaveAccount(_ context.Context, account *wallet.Account) error {
	if _, ok := v.data.accounts[account.Username]; !ok {
		return fmt.Errorf("account %s: %w", account.Username, wallet.ErrNotFound)
	}
	v.data.accounts[account.Username] = *account
	return nil
}

func (v *memoryView) InsertTransaction(_ context.Context, tx *wallet.Transaction) error {
	v.data.nextTxID++
	tx.ID = v.data.nextTxID
	v.data.transactions[tx.ID] = *tx
	return nil
}

func (v *memoryView) GetTransaction(_ context.Context, id int64) (*wallet.Transaction, error) {
	tx, ok := v.data.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, wallet.ErrNotFound)
	}
	return &tx, nil
}

func (v *memoryView) GetDraft(ctx context.Context, id int64, owner string) (*wallet.Transaction, error) {
	tx, err := v.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != wallet.StatusDraft || tx.Sender != owner {
		return nil, fmt.Errorf("draft %d: %w", id, wallet.ErrNotFound)
	}
	return tx, nil
}

func (v *memoryView) GetPendingIncoming(ctx context.Context, id int64, receiver string) (*wallet.Transaction, error) {
	tx, err := v.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != wallet.StatusPending || tx.Receiver != receiver {
		return nil, fmt.Errorf("pending transaction %d: %w", id, wallet.ErrNotFound)
	}
	return tx, nil
}

func (v *memoryView) UpdateTransaction(_ context.Context, tx *wallet.Transaction) error {
	if _, ok := v.data.transactions[tx.ID]; !ok {
		return fmt.Errorf("transaction %d: %w", tx.ID, wallet.ErrNotFound)
	}
	v.data.transactions[tx.ID] = *tx
	return nil
}

func (v *memoryView) DeleteTransaction(_ context.Context, id int64) error {
	if _, ok := v.data.transactions[id]; !ok {
		return fmt.Errorf("transaction %d: %w", id, wallet.ErrNotFound)
	}
	delete(v.data.transactions, id)
	return nil
}

func (v *memoryView) ListTransactions(_ context.Context, filter wallet.TransactionFilter) ([]wallet.Transaction, error) {
	result := []wallet.Transaction{}
	for _, tx := range v.data.transactions {
		if filter.Match(tx) {
			result = append(result, tx)
		}
	}
	wallet.SortTransactions(result, filter.Sort)

	if filter.Paginated() {
		offset := filter.Offset()
		if offset >= len(result) {
			return []wallet.Transaction{}, nil
		}
		end := offset + filter.Limit
		if end > len(result) {
			end = len(result)
		}
		result = result[offset:end]
	}
	return result, nil
}

func (v *memoryView) InsertRecurring(_ context.Context, r *wallet.RecurringTransaction) error {
	v.data.nextRecID++
	r.ID = v.data.nextRecID
	v.data.recurring[r.ID] = *r
	return nil
}

func (v *memoryView) GetRecurring(_ context.Context, id int64) (*wallet.RecurringTransaction, error) {
	r, ok := v.data.recurring[id]
	if !ok {
		return nil, fmt.Errorf("recurring transaction %d: %w", id, wallet.ErrNotFound)
	}
	return &r, nil
}

func (v *memoryView) GetOngoingRecurring(ctx context.Context, id int64, owner string) (*wallet.RecurringTransaction, error) {
	r, err := v.GetRecurring(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != wallet.RecurringOngoing || r.Sender != owner {
		return nil, fmt.Errorf("ongoing recurring transaction %d: %w", id, wallet.ErrNotFound)
	}
	return r, nil
}

func (v *memoryView) UpdateRecurring(_ context.Context, r *wallet.RecurringTransaction) error {
	if _, ok := v.data.recurring[r.ID]; !ok {
		return fmt.Errorf("recurring transaction %d: %w", r.ID, wallet.ErrNotFound)
	}
	v.data.recurring[r.ID] = *r
	return nil
}

func (v *memoryView) ListRecurring(_ context.Context, owner string, status wallet.RecurringStatus) ([]wallet.RecurringTransaction, error) {
	result := []wallet.RecurringTransaction{}
	for _, r := range v.data.recurring {
		if owner != "" && r.Sender != owner {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		result = append(result, r)
	}
	sortRecurring(result)
	return result, nil
}

func sortRecurring(rs []wallet.RecurringTransaction) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
