package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sheikh-saqib/account-ledger-service/internal/ledger"
	"github.com/sheikh-saqib/account-ledger-service/internal/storage/memory"
	"github.com/shopspring/decimal"
)

func newTestHandler() http.Handler {
	store := memory.NewMemoryLedgerStore()
	svc := ledger.NewLedger(store, nil, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
	return NewServer(svc, 10, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("bad response body %q: %v", rec.Body.String(), err)
	}
}

// createAccount posts an account with the given opening balance and returns
// its id.
func createAccount(t *testing.T, h http.Handler, iban, balance string) int64 {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/accounts/",
		fmt.Sprintf(`{"iban": %q, "balance": %q}`, iban, balance), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &resp)
	return resp.ID
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestHandler(), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestAccountLifecycle(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")

	rec := do(t, h, http.MethodGet, fmt.Sprintf("/api/accounts/%d/", id), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status=%d", rec.Code)
	}
	var acct struct {
		IBAN    string          `json:"iban"`
		Balance decimal.Decimal `json:"balance"`
	}
	decode(t, rec, &acct)
	if acct.IBAN != "ES7921000813610123456789" || !acct.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("got %+v", acct)
	}

	rec = do(t, h, http.MethodPatch, fmt.Sprintf("/api/accounts/%d/", id),
		`{"iban": "DE02120300000000202051"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/accounts/", "", nil)
	var all []json.RawMessage
	decode(t, rec, &all)
	if len(all) != 1 {
		t.Fatalf("list: %d accounts, want 1", len(all))
	}

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/api/accounts/%d/", id), "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status=%d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, fmt.Sprintf("/api/accounts/%d/", id), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status=%d", rec.Code)
	}
}

func TestAccountRejections(t *testing.T) {
	h := newTestHandler()
	createAccount(t, h, "ES7921000813610123456789", "0")

	rec := do(t, h, http.MethodPost, "/api/accounts/", `{"iban": "ES7921000813610123456789"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate iban: status=%d", rec.Code)
	}
	var apiErr apiError
	decode(t, rec, &apiErr)
	if apiErr.Code != "duplicate_iban" || apiErr.Field != "iban" {
		t.Fatalf("got %+v", apiErr)
	}

	rec = do(t, h, http.MethodPost, "/api/accounts/", `{"iban": "X", "balance": "-5"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative opening balance: status=%d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/accounts/", `{"balance": "5"}`, nil)
	decode(t, rec, &apiErr)
	if rec.Code != http.StatusBadRequest || apiErr.Field != "iban" {
		t.Fatalf("missing iban: status=%d err=%+v", rec.Code, apiErr)
	}
}

func TestCreateDepositTransaction(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")

	rec := do(t, h, http.MethodPost, "/api/transactions/",
		fmt.Sprintf(`{"type": "deposit", "amount": 100, "account": %d}`, id), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID      int64           `json:"id"`
		Type    string          `json:"type"`
		Account int64           `json:"account"`
		Balance decimal.Decimal `json:"balance"`
	}
	decode(t, rec, &resp)
	if resp.ID == 0 || resp.Type != "deposit" || resp.Account != id {
		t.Fatalf("got %+v", resp)
	}
	if !resp.Balance.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("balance=%s want 1100", resp.Balance)
	}
}

func TestCreateWithdrawalTransaction(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")

	rec := do(t, h, http.MethodPost, "/api/transactions/",
		fmt.Sprintf(`{"type": "withdrawal", "amount": 500, "account": %d}`, id), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decode(t, rec, &resp)
	if !resp.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("balance=%s want 500", resp.Balance)
	}
}

func TestCreateTransferTransaction(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")

	rec := do(t, h, http.MethodPost, "/api/transactions/",
		fmt.Sprintf(`{"type": "transfer", "amount": 300, "account": %d}`, id), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decode(t, rec, &resp)
	if !resp.Balance.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("balance=%s want 700", resp.Balance)
	}
}

func TestInsufficientFundsRejection(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")

	rec := do(t, h, http.MethodPost, "/api/transactions/",
		fmt.Sprintf(`{"type": "withdrawal", "amount": 2000, "account": %d}`, id), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var apiErr apiError
	decode(t, rec, &apiErr)
	if apiErr.Code != "insufficient_funds" || apiErr.Field != "amount" {
		t.Fatalf("got %+v", apiErr)
	}

	// Nothing was created and the balance is untouched.
	var list transactionListResponse
	decode(t, do(t, h, http.MethodGet, "/api/transactions/", "", nil), &list)
	if list.Count != 0 {
		t.Fatalf("count=%d want 0", list.Count)
	}
	var acct struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decode(t, do(t, h, http.MethodGet, fmt.Sprintf("/api/accounts/%d/", id), "", nil), &acct)
	if !acct.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("balance=%s want 1000", acct.Balance)
	}
}

func TestTransactionRejections(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")

	cases := []struct {
		name   string
		body   string
		status int
		code   string
		field  string
	}{
		{"unknown account", `{"type": "deposit", "amount": 10, "account": 9999}`, http.StatusNotFound, "not_found", "account"},
		{"unknown type", fmt.Sprintf(`{"type": "loan", "amount": 10, "account": %d}`, id), http.StatusBadRequest, "unknown_type", "type"},
		{"zero amount", fmt.Sprintf(`{"type": "deposit", "amount": 0, "account": %d}`, id), http.StatusBadRequest, "invalid_amount", "amount"},
		{"negative amount", fmt.Sprintf(`{"type": "deposit", "amount": -10, "account": %d}`, id), http.StatusBadRequest, "invalid_amount", "amount"},
		{"malformed body", `{"type": `, http.StatusBadRequest, "invalid_body", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/transactions/", tc.body, nil)
			if rec.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			var apiErr apiError
			decode(t, rec, &apiErr)
			if apiErr.Code != tc.code || apiErr.Field != tc.field {
				t.Fatalf("got %+v", apiErr)
			}
		})
	}
}

func TestIdempotencyKeyHeader(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")

	body := fmt.Sprintf(`{"type": "deposit", "amount": 100, "account": %d}`, id)
	header := map[string]string{"Idempotency-Key": "req-1"}

	var first, second struct {
		ID      int64           `json:"id"`
		Balance decimal.Decimal `json:"balance"`
	}
	decode(t, do(t, h, http.MethodPost, "/api/transactions/", body, header), &first)
	decode(t, do(t, h, http.MethodPost, "/api/transactions/", body, header), &second)

	if first.ID != second.ID {
		t.Fatalf("replay created a new transaction: %d != %d", first.ID, second.ID)
	}
	if !second.Balance.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("replay moved the balance: %s", second.Balance)
	}
}

// seedSequence posts the four-transaction history used by the filter tests:
// deposit 100, withdrawal 50, transfer 200, deposit 150.
func seedSequence(t *testing.T, h http.Handler, id int64) {
	t.Helper()
	for _, step := range []struct {
		typ    string
		amount int
	}{
		{"deposit", 100}, {"withdrawal", 50}, {"transfer", 200}, {"deposit", 150},
	} {
		rec := do(t, h, http.MethodPost, "/api/transactions/",
			fmt.Sprintf(`{"type": %q, "amount": %d, "account": %d}`, step.typ, step.amount, id), nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("%s %d: status=%d body=%s", step.typ, step.amount, rec.Code, rec.Body.String())
		}
	}
}

func TestFilterTransactionsByType(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")
	seedSequence(t, h, id)

	var list transactionListResponse
	decode(t, do(t, h, http.MethodGet, "/api/transactions/?type=deposit", "", nil), &list)
	if list.Count != 2 {
		t.Fatalf("count=%d want 2 deposits", list.Count)
	}
	for _, tx := range list.Results {
		if tx.Type != "deposit" {
			t.Fatalf("filter leaked a %s", tx.Type)
		}
	}

	// Repeated type parameters widen the filter.
	decode(t, do(t, h, http.MethodGet, "/api/transactions/?type=deposit&type=transfer", "", nil), &list)
	if list.Count != 3 {
		t.Fatalf("count=%d want 3 for deposit+transfer", list.Count)
	}
}

func TestFilterTransactionsByDateRange(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")
	seedSequence(t, h, id)

	today := time.Now()
	yesterday := today.AddDate(0, 0, -1).Format(dateLayout)
	tomorrow := today.AddDate(0, 0, 1).Format(dateLayout)

	var list transactionListResponse
	path := fmt.Sprintf("/api/transactions/?start_date=%s&end_date=%s", yesterday, tomorrow)
	decode(t, do(t, h, http.MethodGet, path, "", nil), &list)
	if list.Count != 4 {
		t.Fatalf("count=%d want 4 inside %s..%s", list.Count, yesterday, tomorrow)
	}

	// Combined with a type filter.
	decode(t, do(t, h, http.MethodGet, path+"&type=deposit", "", nil), &list)
	if list.Count != 2 {
		t.Fatalf("count=%d want 2 deposits in range", list.Count)
	}

	rec := do(t, h, http.MethodGet, "/api/transactions/?start_date=nonsense", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status=%d", rec.Code)
	}
}

func TestTransactionOrderingAndPagination(t *testing.T) {
	h := newTestHandler()
	id := createAccount(t, h, "ES7921000813610123456789", "1000")
	seedSequence(t, h, id)

	// Default ordering is newest first; the last posted transaction was the
	// 150 deposit that brought the balance back to 1000.
	var list transactionListResponse
	decode(t, do(t, h, http.MethodGet, "/api/transactions/", "", nil), &list)
	if len(list.Results) != 4 {
		t.Fatalf("results=%d want 4", len(list.Results))
	}
	if !list.Results[0].Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("newest first: balance=%s want 1000", list.Results[0].Balance)
	}

	decode(t, do(t, h, http.MethodGet, "/api/transactions/?ordering=date", "", nil), &list)
	if !list.Results[0].Balance.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("oldest first: balance=%s want 1100", list.Results[0].Balance)
	}

	// Page size is fixed at 10: a fifth page of nothing still reports count.
	decode(t, do(t, h, http.MethodGet, "/api/transactions/?page=5", "", nil), &list)
	if list.Count != 4 || len(list.Results) != 0 {
		t.Fatalf("page 5: count=%d results=%d", list.Count, len(list.Results))
	}

	rec := do(t, h, http.MethodGet, "/api/transactions/?ordering=amount", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad ordering: status=%d", rec.Code)
	}
}
