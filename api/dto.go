/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  wallet types. Money always travels as a string with two decimal places
  ("12.50"); dates as RFC 3339 timestamps or YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Amount and interval rules live in the wallet package. Handlers only check
  that a body parses.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/virtual-wallet/wallet"
)

// =============================================================================
// REQUESTS
// =============================================================================

// TransferRequest creates or edits a draft.
type TransferRequest struct {
	Receiver    string          `json:"receiver"`
	Amount      decimal.Decimal `json:"amount"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Description *string         `json:"description,omitempty"`
}

func (r TransferRequest) toWallet() wallet.TransferRequest {
	return wallet.TransferRequest{
		Receiver:    r.Receiver,
		Amount:      r.Amount,
		CategoryID:  r.CategoryID,
		Description: r.Description,
	}
}

// RecurringRequest creates a recurring transfer.
type RecurringRequest struct {
	TransferRequest
	RecurringInterval string `json:"recurring_interval"`
	CustomDays        int    `json:"custom_days,omitempty"`
	StartDate         string `json:"start_date,omitempty"` // YYYY-MM-DD, default today
}

// CreateAccountRequest seeds an account.
type CreateAccountRequest struct {
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
}

// BlockAccountRequest blocks or unblocks an account.
type BlockAccountRequest struct {
	Blocked bool `json:"blocked"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// TransactionDTO represents a one-off transaction.
type TransactionDTO struct {
	ID              int64   `json:"id"`
	Sender          string  `json:"sender"`
	Receiver        string  `json:"receiver"`
	Amount          string  `json:"amount"`
	CategoryID      *int64  `json:"category_id,omitempty"`
	Description     *string `json:"description,omitempty"`
	Status          string  `json:"status"`
	TransactionDate *string `json:"transaction_date,omitempty"`
	IsFlagged       bool    `json:"is_flagged"`
	RecurringID     *int64  `json:"recurring_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

func toTransactionDTO(tx wallet.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          tx.ID,
		Sender:      tx.Sender,
		Receiver:    tx.Receiver,
		Amount:      wallet.FormatMoney(tx.Amount),
		CategoryID:  tx.CategoryID,
		Description: tx.Description,
		Status:      string(tx.Status),
		IsFlagged:   tx.IsFlagged,
		RecurringID: tx.RecurringID,
		CreatedAt:   tx.CreatedAt.UTC().Format(time.RFC3339),
	}
	if tx.TransactionDate != nil {
		s := tx.TransactionDate.UTC().Format(time.RFC3339)
		dto.TransactionDate = &s
	}
	return dto
}

func toTransactionDTOs(txs []wallet.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	return dtos
}

// RecurringDTO represents a recurring transfer.
type RecurringDTO struct {
	ID                int64   `json:"id"`
	Sender            string  `json:"sender"`
	Receiver          string  `json:"receiver"`
	Amount            string  `json:"amount"`
	CategoryID        *int64  `json:"category_id,omitempty"`
	Description       *string `json:"description,omitempty"`
	RecurringInterval string  `json:"recurring_interval"`
	CustomDays        int     `json:"custom_days,omitempty"`
	StartDate         string  `json:"start_date"`
	JobID             string  `json:"job_id"`
	Status            string  `json:"status"`
	IsActive          bool    `json:"is_active"`
	NextRunDate       string  `json:"next_run_date,omitempty"`
}

func toRecurringDTO(r wallet.RecurringTransaction, nextRun string) RecurringDTO {
	return RecurringDTO{
		ID:                r.ID,
		Sender:            r.Sender,
		Receiver:          r.Receiver,
		Amount:            wallet.FormatMoney(r.Amount),
		CategoryID:        r.CategoryID,
		Description:       r.Description,
		RecurringInterval: string(r.Interval),
		CustomDays:        r.CustomDays,
		StartDate:         r.StartDate.Format(wallet.DateLayout),
		JobID:             r.JobID,
		Status:            string(r.Status),
		IsActive:          r.IsActive,
		NextRunDate:       nextRun,
	}
}

// AccountDTO represents an account and its balance.
type AccountDTO struct {
	Username  string `json:"username"`
	Balance   string `json:"balance"`
	IsBlocked bool   `json:"is_blocked"`
}

func toAccountDTO(a wallet.Account) AccountDTO {
	return AccountDTO{
		Username:  a.Username,
		Balance:   wallet.FormatMoney(a.Balance),
		IsBlocked: a.IsBlocked,
	}
}

// AcceptResponse is returned when an incoming transfer is accepted.
type AcceptResponse struct {
	Transaction int64  `json:"transaction_id"`
	Status      string `json:"status"`
	NewBalance  string `json:"new_balance"`
}

// MessageResponse acknowledges an action without a resource body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
