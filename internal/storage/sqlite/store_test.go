package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sheikh-saqib/account-ledger-service/internal/models"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *SQLiteLedgerStore {
	t.Helper()
	store, err := NewSQLiteLedgerStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteLedgerStore: %v", err)
	}
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSQLiteAccountRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, "ES7921000813610123456789", dec("1000"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IBAN != acct.IBAN || !got.Balance.Equal(dec("1000")) {
		t.Fatalf("round trip lost data: %+v", got)
	}

	if _, err := store.CreateAccount(ctx, acct.IBAN, decimal.Zero); !errors.Is(err, models.ErrDuplicateIBAN) {
		t.Fatalf("want ErrDuplicateIBAN, got %v", err)
	}
	if _, err := store.GetAccount(ctx, 9999); !errors.Is(err, models.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestSQLiteApplyAndAuditChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, "ES7921000813610123456789", dec("1000"))
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		typ    models.TransactionType
		amount string
		after  string
	}{
		{models.TypeDeposit, "100", "1100"},
		{models.TypeWithdrawal, "50", "1050"},
		{models.TypeTransfer, "200", "850"},
		{models.TypeDeposit, "150", "1000"},
	}
	for _, step := range steps {
		tx, err := store.ApplyTransaction(ctx, acct.ID, step.typ, dec(step.amount), "")
		if err != nil {
			t.Fatalf("%s %s: %v", step.typ, step.amount, err)
		}
		if !tx.BalanceAfter.Equal(dec(step.after)) {
			t.Fatalf("%s %s: balance_after=%s want %s", step.typ, step.amount, tx.BalanceAfter, step.after)
		}
	}

	page, err := store.ListTransactions(ctx, models.TransactionFilter{
		AccountID: acct.ID,
		Ordering:  models.OrderDateAsc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.Count != 4 {
		t.Fatalf("count=%d want 4", page.Count)
	}
	running := dec("1000")
	for _, tx := range page.Results {
		running = running.Add(tx.SignedAmount())
		if !tx.BalanceAfter.Equal(running) {
			t.Fatalf("audit chain broken at tx %d: %s want %s", tx.ID, tx.BalanceAfter, running)
		}
	}

	deposits, err := store.ListTransactions(ctx, models.TransactionFilter{
		Types: []models.TransactionType{models.TypeDeposit},
	})
	if err != nil {
		t.Fatal(err)
	}
	if deposits.Count != 2 {
		t.Fatalf("deposit count=%d want 2", deposits.Count)
	}
}

func TestSQLiteInsufficientFundsAppliesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, "ES7921000813610123456789", dec("1000"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.ApplyTransaction(ctx, acct.ID, models.TypeWithdrawal, dec("2000"), ""); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	got, _ := store.GetAccount(ctx, acct.ID)
	if !got.Balance.Equal(dec("1000")) {
		t.Fatalf("balance changed: %s", got.Balance)
	}
	page, _ := store.ListTransactions(ctx, models.TransactionFilter{})
	if page.Count != 0 {
		t.Fatalf("rejected withdrawal left %d transaction(s)", page.Count)
	}
}

func TestSQLiteIdempotencyAndCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, "ES7921000813610123456789", dec("1000"))
	if err != nil {
		t.Fatal(err)
	}

	first, err := store.ApplyTransaction(ctx, acct.ID, models.TypeDeposit, dec("100"), "key-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.ApplyTransaction(ctx, acct.ID, models.TypeDeposit, dec("100"), "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay created a new transaction: %d != %d", second.ID, first.ID)
	}
	got, _ := store.GetAccount(ctx, acct.ID)
	if !got.Balance.Equal(dec("1100")) {
		t.Fatalf("replay moved the balance: %s", got.Balance)
	}

	if err := store.DeleteAccount(ctx, acct.ID); err != nil {
		t.Fatal(err)
	}
	page, _ := store.ListTransactions(ctx, models.TransactionFilter{})
	if page.Count != 0 {
		t.Fatalf("cascade left %d transaction(s)", page.Count)
	}
}
