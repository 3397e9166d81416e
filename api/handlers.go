/*
handlers.go - HTTP API handlers for the virtual wallet

PURPOSE:
  Exposes the wallet ledger via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every money movement to wallet.Ledger.

ENDPOINTS (caller in X-Username):
  Transactions:
    POST   /api/transactions                 Create draft
    GET    /api/transactions                 Caller's history
    PUT    /api/transactions/{id}            Edit draft
    DELETE /api/transactions/{id}            Delete draft
    POST   /api/transactions/{id}/confirm    Confirm draft (debits sender)
    POST   /api/transactions/{id}/accept     Accept incoming (credits receiver)
    POST   /api/transactions/{id}/decline    Decline incoming (refunds sender)

  Recurring:
    POST   /api/recurring                    Create recurring transfer
    GET    /api/recurring                    Caller's ongoing transfers
    DELETE /api/recurring/{id}               Cancel

  Accounts:
    GET    /api/accounts/me                  Caller's balance

  Admin:
    GET    /api/admin/transactions           All transactions, filtered
    POST   /api/admin/transactions/{id}/deny Deny a pending transfer
    POST   /api/admin/accounts               Seed an account
    PUT    /api/admin/accounts/{username}/block

ERROR HANDLING:
  writeDomainError maps wallet errors to statuses:
  - 400: invalid amount, insufficient funds, invalid state, self transfer
  - 403: blocked account
  - 404: missing entry or account, or entry in the wrong state
  - 409: account already exists
  - 500: storage failures

SECURITY NOTE:
  Admin routes are not authenticated here. Put them behind the gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/virtual-wallet/wallet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Accounts is the account directory as seen by the API.
type Accounts interface {
	GetAccount(ctx context.Context, username string) (*wallet.Account, error)
	wallet.AccountAdmin
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger   *wallet.Ledger
	Accounts Accounts
	logger   *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(ledger *wallet.Ledger, accounts Accounts, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		Ledger:   ledger,
		Accounts: accounts,
		logger:   logger.With("component", "api"),
	}
}

// Health reports that the process is serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// CreateTransaction creates a draft.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := h.Ledger.CreateDraft(r.Context(), caller(r), req.toWallet())
	if err != nil {
		h.writeDomainError(w, r, "Failed to create transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// UpdateTransaction edits a draft.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := h.Ledger.UpdateDraft(r.Context(), caller(r), id, req.toWallet())
	if err != nil {
		h.writeDomainError(w, r, "Failed to update transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// DeleteTransaction removes a draft.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeleteDraft(r.Context(), caller(r), id); err != nil {
		h.writeDomainError(w, r, "Failed to delete transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Transaction deleted"})
}

// ConfirmTransaction confirms a draft.
func (h *Handler) ConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.Ledger.ConfirmDraft(r.Context(), caller(r), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to confirm transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// AcceptTransaction accepts an incoming pending transfer.
func (h *Handler) AcceptTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.Ledger.AcceptIncoming(r.Context(), caller(r), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to accept transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, AcceptResponse{
		Transaction: id,
		Status:      string(wallet.StatusCompleted),
		NewBalance:  wallet.FormatMoney(balance),
	})
}

// DeclineTransaction declines an incoming pending transfer.
func (h *Handler) DeclineTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeclineIncoming(r.Context(), caller(r), id); err != nil {
		h.writeDomainError(w, r, "Failed to decline transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Transaction declined"})
}

// ListHistory returns the caller's transactions.
// Query: direction, counterparty, status, sort, page, limit.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}
	query := wallet.HistoryQuery{
		Direction:    wallet.Direction(strings.ToLower(strings.TrimSpace(q.Get("direction")))),
		Counterparty: strings.TrimSpace(q.Get("counterparty")),
		Status:       wallet.TransactionStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Sort:         wallet.SortOrder(strings.TrimSpace(q.Get("sort"))),
		Page:         page,
		Limit:        limit,
	}
	if query.Direction == "all" {
		query.Direction = wallet.DirectionAll
	}

	txs, err := h.Ledger.ListHistory(r.Context(), caller(r), query)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// RECURRING ENDPOINTS
// =============================================================================

// CreateRecurring sets up a recurring transfer.
func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req RecurringRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var start time.Time
	if req.StartDate != "" {
		parsed, err := time.Parse(wallet.DateLayout, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
		start = parsed
	}

	rec, err := h.Ledger.CreateRecurring(r.Context(), caller(r), wallet.RecurringRequest{
		TransferRequest: req.toWallet(),
		Interval:        wallet.RecurringInterval(strings.ToLower(strings.TrimSpace(req.RecurringInterval))),
		CustomDays:      req.CustomDays,
		StartDate:       start,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to create recurring transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringDTO(*rec, ""))
}

// ListRecurring returns the caller's ongoing recurring transfers.
func (h *Handler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	views, err := h.Ledger.ListRecurring(r.Context(), caller(r))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list recurring transactions", err)
		return
	}
	dtos := make([]RecurringDTO, 0, len(views))
	for _, v := range views {
		dtos = append(dtos, toRecurringDTO(v.RecurringTransaction, v.NextRunDate))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CancelRecurring stops a recurring transfer.
func (h *Handler) CancelRecurring(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.CancelRecurring(r.Context(), caller(r), id); err != nil {
		h.writeDomainError(w, r, "Failed to cancel recurring transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Recurring transaction cancelled"})
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// GetMyAccount returns the caller's balance.
func (h *Handler) GetMyAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Accounts.GetAccount(r.Context(), caller(r))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// AdminListTransactions lists every transaction.
// Query: sender, receiver, status, is_flagged, sort, page, limit.
func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}
	filter := wallet.TransactionFilter{
		Sender:   strings.TrimSpace(q.Get("sender")),
		Receiver: strings.TrimSpace(q.Get("receiver")),
		Status:   wallet.TransactionStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Sort:     wallet.SortOrder(strings.TrimSpace(q.Get("sort"))),
		Page:     page,
		Limit:    limit,
	}
	if raw := strings.TrimSpace(q.Get("is_flagged")); raw != "" {
		flagged, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid is_flagged value", err)
			return
		}
		filter.Flagged = &flagged
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}

	txs, err := h.Ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// AdminDenyTransaction denies a pending transfer and refunds the sender.
func (h *Handler) AdminDenyTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DenyTransaction(r.Context(), id); err != nil {
		h.writeDomainError(w, r, "Failed to deny transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Transaction denied"})
}

// AdminCreateAccount seeds an account with an opening balance.
func (h *Handler) AdminCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required", nil)
		return
	}
	if req.Balance.IsNegative() {
		writeError(w, http.StatusBadRequest, "balance must not be negative", nil)
		return
	}

	if err := h.Accounts.CreateAccount(r.Context(), req.Username, req.Balance); err != nil {
		h.writeDomainError(w, r, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(wallet.Account{Username: req.Username, Balance: req.Balance}))
}

// AdminBlockAccount blocks or unblocks an account.
func (h *Handler) AdminBlockAccount(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var req BlockAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.Accounts.SetBlocked(r.Context(), username, req.Blocked); err != nil {
		h.writeDomainError(w, r, "Failed to update account", err)
		return
	}
	account, err := h.Accounts.GetAccount(r.Context(), username)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a wallet error to its status. Storage failures are
// logged and their details are not sent to the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, ErrorResponse{Error: message, Code: code})
		return
	}

	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}
	var funds *wallet.InsufficientFundsError
	if errors.As(err, &funds) {
		resp.Details = map[string]string{
			"available": wallet.FormatMoney(funds.Available),
			"requested": wallet.FormatMoney(funds.Requested),
		}
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, wallet.ErrAccountBlocked):
		return http.StatusForbidden, "account_blocked"
	case errors.Is(err, wallet.ErrAccountExists):
		return http.StatusConflict, "account_exists"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusBadRequest, "insufficient_funds"
	case errors.Is(err, wallet.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, wallet.ErrSelfTransfer):
		return http.StatusBadRequest, "self_transfer"
	case errors.Is(err, wallet.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	}
	return http.StatusInternalServerError, "internal"
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func paging(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	page, err := parseOptionalPositiveInt(r.URL.Query().Get("page"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return 0, 0, false
	}
	limit, err = parseOptionalPositiveInt(r.URL.Query().Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return 0, 0, false
	}
	return page, limit, true
}

func parseOptionalPositiveInt(raw string, defaultValue int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.New("must be >= 0")
	}
	return value, nil
}

// caller is only valid behind RequireUser.
func caller(r *http.Request) string {
	username, _ := Username(r.Context())
	return username
}
