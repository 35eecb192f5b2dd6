package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sheikh-saqib/account-ledger-service/internal/ledger"
	"github.com/sheikh-saqib/account-ledger-service/internal/models"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Server is the HTTP boundary over the ledger service. It only translates
// request shapes and rejections; every business rule lives below it.
type Server struct {
	ledger   *ledger.Ledger
	logger   *slog.Logger
	pageSize int
}

func NewServer(l *ledger.Ledger, pageSize int, logger *slog.Logger) *Server {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ledger: l, logger: logger, pageSize: pageSize}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/accounts/", s.handleAccounts)
	mux.HandleFunc("/api/transactions/", s.handleTransactions)
	return mux
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			s.listAccounts(w, r)
		case http.MethodPost:
			s.createAccount(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	id, err := strconv.ParseInt(strings.TrimSuffix(rest, "/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "no such account", "")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.getAccount(w, r, id)
	case http.MethodPatch, http.MethodPut:
		s.updateAccount(w, r, id)
	case http.MethodDelete:
		s.deleteAccount(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransactions(w, r)
	case http.MethodPost:
		s.createTransaction(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createAccountRequest struct {
	IBAN    string           `json:"iban"`
	Balance *decimal.Decimal `json:"balance"`
}

type updateAccountRequest struct {
	IBAN *string `json:"iban"`
}

type accountResponse struct {
	ID      int64           `json:"id"`
	IBAN    string          `json:"iban"`
	Balance decimal.Decimal `json:"balance"`
}

func toAccountResponse(a models.Account) accountResponse {
	return accountResponse{ID: a.ID, IBAN: a.IBAN, Balance: a.Balance}
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", "")
		return
	}
	if req.IBAN == "" {
		writeError(w, http.StatusBadRequest, "required", "iban is required", "iban")
		return
	}
	balance := decimal.Zero
	if req.Balance != nil {
		balance = *req.Balance
	}

	acct, err := s.ledger.CreateAccount(r.Context(), req.IBAN, balance)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(acct))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request, id int64) {
	acct, err := s.ledger.GetAccount(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request, id int64) {
	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", "")
		return
	}
	acct, err := s.ledger.UpdateAccount(r.Context(), id, models.AccountPatch{IBAN: req.IBAN})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.ledger.DeleteAccount(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTransactionRequest struct {
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Account int64           `json:"account"`
}

type createTransactionResponse struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Account int64           `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// transactionListItem is the read shape: no id or account, balance is the
// post-transaction snapshot.
type transactionListItem struct {
	Date    time.Time       `json:"date"`
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

type transactionListResponse struct {
	Count    int                   `json:"count"`
	Next     *int                  `json:"next"`
	Previous *int                  `json:"previous"`
	Results  []transactionListItem `json:"results"`
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", "")
		return
	}

	tx, err := s.ledger.Submit(r.Context(), req.Account,
		models.TransactionType(req.Type), req.Amount, r.Header.Get("Idempotency-Key"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createTransactionResponse{
		ID:      tx.ID,
		Type:    string(tx.Type),
		Amount:  tx.Amount,
		Account: tx.AccountID,
		Balance: tx.BalanceAfter,
	})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.TransactionFilter{
		Ordering: models.OrderDateDesc,
		PageSize: s.pageSize,
	}

	for _, raw := range q["type"] {
		typ := models.TransactionType(raw)
		if !typ.Valid() {
			writeError(w, http.StatusBadRequest, "unknown_type", "unknown transaction type", "type")
			return
		}
		filter.Types = append(filter.Types, typ)
	}

	if raw := q.Get("start_date"); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "start_date must be YYYY-MM-DD", "start_date")
			return
		}
		filter.StartDate = &t
	}
	if raw := q.Get("end_date"); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "end_date must be YYYY-MM-DD", "end_date")
			return
		}
		filter.EndDate = &t
	}
	if raw := q.Get("ordering"); raw != "" {
		if raw != models.OrderDateAsc && raw != models.OrderDateDesc {
			writeError(w, http.StatusBadRequest, "invalid_ordering", "ordering must be date or -date", "ordering")
			return
		}
		filter.Ordering = raw
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer", "page")
			return
		}
		filter.Page = n
	}
	if raw := q.Get("account"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_account", "account must be an integer id", "account")
			return
		}
		filter.AccountID = id
	}

	page, err := s.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := transactionListResponse{
		Count:    page.Count,
		Next:     page.Next,
		Previous: page.Previous,
		Results:  make([]transactionListItem, len(page.Results)),
	}
	for i, tx := range page.Results {
		resp.Results[i] = transactionListItem{
			Date:    tx.Date,
			Type:    string(tx.Type),
			Amount:  tx.Amount,
			Balance: tx.BalanceAfter,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps domain errors onto the rejection contract: a
// machine-readable code, a message, and the offending field where one exists.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "not_found", "account not found", "account")
	case errors.Is(err, models.ErrDuplicateIBAN):
		writeError(w, http.StatusBadRequest, "duplicate_iban", "an account with this iban already exists", "iban")
	case errors.Is(err, models.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive with at most two decimal places", "amount")
	case errors.Is(err, models.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "insufficient_funds", "insufficient funds for this transaction", "amount")
	case errors.Is(err, models.ErrUnknownTransactionType):
		writeError(w, http.StatusBadRequest, "unknown_type", "unknown transaction type", "type")
	case errors.Is(err, models.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "conflict", "the account is busy, retry the request", "")
	default:
		s.logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error", "")
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, field string) {
	writeJSON(w, status, apiError{Code: code, Message: message, Field: field})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
