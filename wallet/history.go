package wallet

import (
	"context"
	"fmt"
	"sort"
)

// SortOrder selects the ordering of a transaction listing.
type SortOrder string

const (
	SortDefault    SortOrder = ""
	SortDateAsc    SortOrder = "date_asc"
	SortDateDesc   SortOrder = "date_desc"
	SortAmountAsc  SortOrder = "amount_asc"
	SortAmountDesc SortOrder = "amount_desc"
)

func (s SortOrder) Valid() bool {
	switch s {
	case SortDefault, SortDateAsc, SortDateDesc, SortAmountAsc, SortAmountDesc:
		return true
	}
	return false
}

// Direction is relative to the viewer of a history listing.
type Direction string

const (
	DirectionAll      Direction = ""
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// TransactionFilter is consumed by EntryStore.ListTransactions. Empty fields
// do not filter. Party matches entries where the user is sender or receiver;
// with Counterparty set, the other side must be that user.
// Page and Limit paginate only when both are positive.
//
// Ordering: date sorts place entries without a transaction date first when
// ascending and last when descending; ties and the default order use id.
type TransactionFilter struct {
	Sender       string
	Receiver     string
	Party        string
	Counterparty string
	Status       TransactionStatus
	Flagged      *bool
	Sort         SortOrder
	Page         int
	Limit        int
}

// Offset is the number of rows skipped for the requested page.
func (f TransactionFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

func (f TransactionFilter) Paginated() bool {
	return f.Page > 0 && f.Limit > 0
}

// Match applies the filter to a single transaction; Sort and pagination are
// not considered.
func (f TransactionFilter) Match(tx Transaction) bool {
	if f.Sender != "" && tx.Sender != f.Sender {
		return false
	}
	if f.Receiver != "" && tx.Receiver != f.Receiver {
		return false
	}
	if f.Party != "" {
		switch {
		case tx.Sender == f.Party:
			if f.Counterparty != "" && tx.Receiver != f.Counterparty {
				return false
			}
		case tx.Receiver == f.Party:
			if f.Counterparty != "" && tx.Sender != f.Counterparty {
				return false
			}
		default:
			return false
		}
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Flagged != nil && tx.IsFlagged != *f.Flagged {
		return false
	}
	return true
}

// SortTransactions orders txs in place following the TransactionFilter rules.
func SortTransactions(txs []Transaction, order SortOrder) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		switch order {
		case SortDateAsc, SortDateDesc:
			if c := compareDates(a, b); c != 0 {
				if order == SortDateAsc {
					return c < 0
				}
				return c > 0
			}
		case SortAmountAsc:
			if !a.Amount.Equal(b.Amount) {
				return a.Amount.LessThan(b.Amount)
			}
		case SortAmountDesc:
			if !a.Amount.Equal(b.Amount) {
				return a.Amount.GreaterThan(b.Amount)
			}
		}
		return a.ID < b.ID
	})
}

// compareDates treats a missing transaction date as the earliest date.
func compareDates(a, b Transaction) int {
	switch {
	case a.TransactionDate == nil && b.TransactionDate == nil:
		return 0
	case a.TransactionDate == nil:
		return -1
	case b.TransactionDate == nil:
		return 1
	case a.TransactionDate.Before(*b.TransactionDate):
		return -1
	case a.TransactionDate.After(*b.TransactionDate):
		return 1
	}
	return 0
}

// HistoryQuery is a user's view over their own transactions.
type HistoryQuery struct {
	Direction    Direction
	Counterparty string
	Status       TransactionStatus
	Sort         SortOrder
	Page         int
	Limit        int
}

// Filter converts the query into a store filter for viewer.
func (q HistoryQuery) Filter(viewer string) (TransactionFilter, error) {
	if !q.Sort.Valid() {
		return TransactionFilter{}, fmt.Errorf("%w: unknown sort %q", ErrInvalidState, q.Sort)
	}
	if q.Status != "" && !q.Status.Valid() {
		return TransactionFilter{}, fmt.Errorf("%w: unknown status %q", ErrInvalidState, q.Status)
	}
	f := TransactionFilter{Status: q.Status, Sort: q.Sort, Page: q.Page, Limit: q.Limit}
	switch q.Direction {
	case DirectionIncoming:
		f.Receiver = viewer
		f.Sender = q.Counterparty
	case DirectionOutgoing:
		f.Sender = viewer
		f.Receiver = q.Counterparty
	case DirectionAll:
		f.Party = viewer
		f.Counterparty = q.Counterparty
	default:
		return TransactionFilter{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidState, q.Direction)
	}
	return f, nil
}

// ListHistory returns the viewer's transactions. Read-only.
func (l *Ledger) ListHistory(ctx context.Context, viewer string, q HistoryQuery) ([]Transaction, error) {
	f, err := q.Filter(viewer)
	if err != nil {
		return nil, err
	}
	txs, err := l.store.ListTransactions(ctx, f)
	return txs, wrapStorage("list history", err)
}

// ListTransactions is the administrative view over all transactions.
func (l *Ledger) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	if !f.Sort.Valid() {
		return nil, fmt.Errorf("%w: unknown sort %q", ErrInvalidState, f.Sort)
	}
	for _, user := range []string{f.Sender, f.Receiver} {
		if user == "" {
			continue
		}
		if _, err := l.store.GetAccount(ctx, user); err != nil {
			return nil, wrapStorage("get account", err)
		}
	}
	txs, err := l.store.ListTransactions(ctx, f)
	return txs, wrapStorage("list transactions", err)
}
