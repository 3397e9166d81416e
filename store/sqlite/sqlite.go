/*
Package sqlite provides a SQLite-backed implementation of wallet.Store.

PURPOSE:
  Persists accounts, one-off transactions and recurring instructions in a
  single SQLite file. It is the default backend of the server.

KEY TABLES:
  accounts:               username, balance, block flag
  transactions:           one-off entries and entries spawned by recurring jobs
  recurring_transactions: standing instructions and their scheduler job ids

MONEY:
  Amounts and balances are stored as TEXT with exactly two decimal places
  and parsed back into decimal.Decimal. Sorting by amount casts to REAL,
  which is exact for the NUMERIC(10,2) range.

CONCURRENCY:
  Uses sync.RWMutex: WithTx holds the write lock for the whole unit of work,
  so reads performed inside it behave like row locks. Every read inside a
  unit of work goes through the *sql.Tx, never through the pool.

USAGE:
  store, err := sqlite.New("./wallet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := wallet.NewLedger(store, scheduler, notifier, logger)

SEE ALSO:
  - wallet/store.go:        Interface definitions
  - wallet/store/memory.go: In-memory implementation for testing
  - store/postgres:         PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/virtual-wallet/wallet"
)

// timeLayout is fixed width so that text ordering equals time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements wallet.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		username TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		is_blocked INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS recurring_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL REFERENCES accounts(username),
		receiver TEXT NOT NULL REFERENCES accounts(username),
		amount TEXT NOT NULL,
		category_id INTEGER,
		description TEXT,
		recurring_interval TEXT NOT NULL,
		custom_days INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL,
		job_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL REFERENCES accounts(username),
		receiver TEXT NOT NULL REFERENCES accounts(username),
		amount TEXT NOT NULL,
		category_id INTEGER,
		description TEXT,
		status TEXT NOT NULL,
		transaction_date TEXT,
		is_flagged INTEGER NOT NULL DEFAULT 0,
		recurring_id INTEGER REFERENCES recurring_transactions(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_sender_status
		ON transactions(sender, status);
	CREATE INDEX IF NOT EXISTS idx_transactions_receiver_status
		ON transactions(receiver, status);
	CREATE INDEX IF NOT EXISTS idx_recurring_sender_status
		ON recurring_transactions(sender, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(wallet.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements wallet.Tx over a querier. The caller holds the lock.
type queries struct {
	db querier
}

func (s *Store) q() *queries {
	return &queries{db: s.db}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// CreateAccount registers an account with an opening balance.
func (s *Store) CreateAccount(ctx context.Context, username string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (username, balance, is_blocked) VALUES (?, ?, 0)",
		username, wallet.FormatMoney(balance),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%s: %w", username, wallet.ErrAccountExists)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// SetBlocked flips the block flag of an account.
func (s *Store) SetBlocked(ctx context.Context, username string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET is_blocked = ? WHERE username = ?",
		boolInt(blocked), username,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectRow(res, "account "+username)
}

func (s *Store) GetAccount(ctx context.Context, username string) (*wallet.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetAccount(ctx, username)
}

func (s *Store) SaveAccount(ctx context.Context, account *wallet.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().SaveAccount(ctx, account)
}

func (q *queries) GetAccount(ctx context.Context, username string) (*wallet.Account, error) {
	var (
		acc     wallet.Account
		balance string
		blocked int
	)
	err := q.db.QueryRowContext(ctx,
		"SELECT username, balance, is_blocked FROM accounts WHERE username = ?",
		username,
	).Scan(&acc.Username, &balance, &blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", username, wallet.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if acc.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("corrupt balance for %s: %w", username, err)
	}
	acc.IsBlocked = blocked != 0
	return &acc, nil
}

func (q *queries) SaveAccount(ctx context.Context, account *wallet.Account) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE accounts SET balance = ?, is_blocked = ? WHERE username = ?",
		wallet.FormatMoney(account.Balance), boolInt(account.IsBlocked), account.Username,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return expectRow(res, "account "+account.Username)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, sender, receiver, amount, category_id, description,
	status, transaction_date, is_flagged, recurring_id, created_at`

func (s *Store) InsertTransaction(ctx context.Context, tx *wallet.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().InsertTransaction(ctx, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetTransaction(ctx, id)
}

func (s *Store) GetDraft(ctx context.Context, id int64, owner string) (*wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetDraft(ctx, id, owner)
}

func (s *Store) GetPendingIncoming(ctx context.Context, id int64, receiver string) (*wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetPendingIncoming(ctx, id, receiver)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *wallet.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpdateTransaction(ctx, tx)
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().DeleteTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, filter wallet.TransactionFilter) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListTransactions(ctx, filter)
}

func (q *queries) InsertTransaction(ctx context.Context, tx *wallet.Transaction) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions
		(sender, receiver, amount, category_id, description, status,
		 transaction_date, is_flagged, recurring_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Sender, tx.Receiver, wallet.FormatMoney(tx.Amount),
		nullInt(tx.CategoryID), nullString(tx.Description), string(tx.Status),
		nullTime(tx.TransactionDate), boolInt(tx.IsFlagged), nullInt(tx.RecurringID),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	if tx.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read transaction id: %w", err)
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id int64) (*wallet.Transaction, error) {
	return q.getTransaction(ctx, fmt.Sprintf("transaction %d", id),
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
}

func (q *queries) GetDraft(ctx context.Context, id int64, owner string) (*wallet.Transaction, error) {
	return q.getTransaction(ctx, fmt.Sprintf("draft %d", id),
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND sender = ? AND status = ?",
		id, owner, string(wallet.StatusDraft))
}

func (q *queries) GetPendingIncoming(ctx context.Context, id int64, receiver string) (*wallet.Transaction, error) {
	return q.getTransaction(ctx, fmt.Sprintf("pending transaction %d", id),
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND receiver = ? AND status = ?",
		id, receiver, string(wallet.StatusPending))
}

func (q *queries) getTransaction(ctx context.Context, what, query string, args ...any) (*wallet.Transaction, error) {
	txs, err := q.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("%s: %w", what, wallet.ErrNotFound)
	}
	return &txs[0], nil
}

func (q *queries) UpdateTransaction(ctx context.Context, tx *wallet.Transaction) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions
		SET receiver = ?, amount = ?, category_id = ?, description = ?, status = ?,
		    transaction_date = ?, is_flagged = ?
		WHERE id = ?`,
		tx.Receiver, wallet.FormatMoney(tx.Amount), nullInt(tx.CategoryID),
		nullString(tx.Description), string(tx.Status), nullTime(tx.TransactionDate),
		boolInt(tx.IsFlagged), tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectRow(res, fmt.Sprintf("transaction %d", tx.ID))
}

func (q *queries) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return expectRow(res, fmt.Sprintf("transaction %d", id))
}

func (q *queries) ListTransactions(ctx context.Context, filter wallet.TransactionFilter) ([]wallet.Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, values ...any) {
		where = append(where, clause)
		args = append(args, values...)
	}

	if filter.Sender != "" {
		add("sender = ?", filter.Sender)
	}
	if filter.Receiver != "" {
		add("receiver = ?", filter.Receiver)
	}
	if filter.Party != "" {
		if filter.Counterparty != "" {
			add("((sender = ? AND receiver = ?) OR (receiver = ? AND sender = ?))",
				filter.Party, filter.Counterparty, filter.Party, filter.Counterparty)
		} else {
			add("(sender = ? OR receiver = ?)", filter.Party, filter.Party)
		}
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.Flagged != nil {
		add("is_flagged = ?", boolInt(*filter.Flagged))
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy(filter.Sort)
	if filter.Paginated() {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset())
	}

	return q.queryTransactions(ctx, query, args...)
}

func orderBy(order wallet.SortOrder) string {
	switch order {
	case wallet.SortDateAsc:
		return "transaction_date ASC NULLS FIRST, id ASC"
	case wallet.SortDateDesc:
		return "transaction_date DESC NULLS LAST, id ASC"
	case wallet.SortAmountAsc:
		return "CAST(amount AS REAL) ASC, id ASC"
	case wallet.SortAmountDesc:
		return "CAST(amount AS REAL) DESC, id ASC"
	}
	return "id ASC"
}

func (q *queries) queryTransactions(ctx context.Context, query string, args ...any) ([]wallet.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []wallet.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (wallet.Transaction, error) {
	var (
		tx          wallet.Transaction
		amount      string
		categoryID  sql.NullInt64
		description sql.NullString
		status      string
		txDate      sql.NullString
		flagged     int
		recurringID sql.NullInt64
		createdAt   string
	)

	err := rows.Scan(
		&tx.ID, &tx.Sender, &tx.Receiver, &amount, &categoryID, &description,
		&status, &txDate, &flagged, &recurringID, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, fmt.Errorf("corrupt amount on transaction %d: %w", tx.ID, err)
	}
	tx.CategoryID = intPtr(categoryID)
	tx.Description = stringPtr(description)
	tx.Status = wallet.TransactionStatus(status)
	if tx.TransactionDate, err = timePtr(txDate); err != nil {
		return tx, fmt.Errorf("corrupt transaction_date on transaction %d: %w", tx.ID, err)
	}
	tx.IsFlagged = flagged != 0
	tx.RecurringID = intPtr(recurringID)
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return tx, fmt.Errorf("corrupt created_at on transaction %d: %w", tx.ID, err)
	}
	return tx, nil
}

// =============================================================================
// RECURRING TRANSACTIONS
// =============================================================================

const recurringColumns = `id, sender, receiver, amount, category_id, description,
	recurring_interval, custom_days, start_date, job_id, status, is_active, created_at`

func (s *Store) InsertRecurring(ctx context.Context, r *wallet.RecurringTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().InsertRecurring(ctx, r)
}

func (s *Store) GetRecurring(ctx context.Context, id int64) (*wallet.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetRecurring(ctx, id)
}

func (s *Store) GetOngoingRecurring(ctx context.Context, id int64, owner string) (*wallet.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetOngoingRecurring(ctx, id, owner)
}

func (s *Store) UpdateRecurring(ctx context.Context, r *wallet.RecurringTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpdateRecurring(ctx, r)
}

func (s *Store) ListRecurring(ctx context.Context, owner string, status wallet.RecurringStatus) ([]wallet.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListRecurring(ctx, owner, status)
}

func (q *queries) InsertRecurring(ctx context.Context, r *wallet.RecurringTransaction) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO recurring_transactions
		(sender, receiver, amount, category_id, description, recurring_interval,
		 custom_days, start_date, job_id, status, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Sender, r.Receiver, wallet.FormatMoney(r.Amount),
		nullInt(r.CategoryID), nullString(r.Description), string(r.Interval),
		r.CustomDays, formatTime(r.StartDate), r.JobID, string(r.Status),
		boolInt(r.IsActive), formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert recurring transaction: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read recurring transaction id: %w", err)
	}
	return nil
}

func (q *queries) GetRecurring(ctx context.Context, id int64) (*wallet.RecurringTransaction, error) {
	return q.getRecurring(ctx, fmt.Sprintf("recurring transaction %d", id),
		"SELECT "+recurringColumns+" FROM recurring_transactions WHERE id = ?", id)
}

func (q *queries) GetOngoingRecurring(ctx context.Context, id int64, owner string) (*wallet.RecurringTransaction, error) {
	return q.getRecurring(ctx, fmt.Sprintf("ongoing recurring transaction %d", id),
		"SELECT "+recurringColumns+" FROM recurring_transactions WHERE id = ? AND sender = ? AND status = ?",
		id, owner, string(wallet.RecurringOngoing))
}

func (q *queries) getRecurring(ctx context.Context, what, query string, args ...any) (*wallet.RecurringTransaction, error) {
	rs, err := q.queryRecurring(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, fmt.Errorf("%s: %w", what, wallet.ErrNotFound)
	}
	return &rs[0], nil
}

func (q *queries) UpdateRecurring(ctx context.Context, r *wallet.RecurringTransaction) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE recurring_transactions
		SET job_id = ?, status = ?, is_active = ?
		WHERE id = ?`,
		r.JobID, string(r.Status), boolInt(r.IsActive), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recurring transaction: %w", err)
	}
	return expectRow(res, fmt.Sprintf("recurring transaction %d", r.ID))
}

func (q *queries) ListRecurring(ctx context.Context, owner string, status wallet.RecurringStatus) ([]wallet.RecurringTransaction, error) {
	query := "SELECT " + recurringColumns + " FROM recurring_transactions WHERE 1 = 1"
	var args []any
	if owner != "" {
		query += " AND sender = ?"
		args = append(args, owner)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id ASC"
	return q.queryRecurring(ctx, query, args...)
}

func (q *queries) queryRecurring(ctx context.Context, query string, args ...any) ([]wallet.RecurringTransaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring transactions: %w", err)
	}
	defer rows.Close()

	result := []wallet.RecurringTransaction{}
	for rows.Next() {
		var (
			r           wallet.RecurringTransaction
			amount      string
			categoryID  sql.NullInt64
			description sql.NullString
			interval    string
			startDate   string
			status      string
			active      int
			createdAt   string
		)
		err := rows.Scan(
			&r.ID, &r.Sender, &r.Receiver, &amount, &categoryID, &description,
			&interval, &r.CustomDays, &startDate, &r.JobID, &status, &active, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurring transaction: %w", err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount on recurring transaction %d: %w", r.ID, err)
		}
		r.CategoryID = intPtr(categoryID)
		r.Description = stringPtr(description)
		r.Interval = wallet.RecurringInterval(interval)
		if r.StartDate, err = parseTime(startDate); err != nil {
			return nil, fmt.Errorf("corrupt start_date on recurring transaction %d: %w", r.ID, err)
		}
		r.Status = wallet.RecurringStatus(status)
		r.IsActive = active != 0
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("corrupt created_at on recurring transaction %d: %w", r.ID, err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "recurring_transactions", "accounts"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, wallet.ErrNotFound)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func timePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
