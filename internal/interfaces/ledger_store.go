package interfaces

import (
	"context"

	"github.com/sheikh-saqib/account-ledger-service/internal/models"
	"github.com/shopspring/decimal"
)

// LedgerStore is the durable record of accounts and transactions. Every
// implementation owns the balance invariant: ApplyTransaction performs the
// funds check and commits the balance update together with the transaction
// record as one atomic unit, under exclusive per-account access.
type LedgerStore interface {
	CreateAccount(ctx context.Context, iban string, initialBalance decimal.Decimal) (models.Account, error)
	GetAccount(ctx context.Context, id int64) (models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) (models.Account, error)
	DeleteAccount(ctx context.Context, id int64) error

	// ApplyTransaction validates amount and funds, then persists the new
	// balance and the transaction record atomically. idempotencyKey may be
	// empty; when set and already recorded, the original transaction is
	// returned unchanged.
	ApplyTransaction(ctx context.Context, accountID int64, typ models.TransactionType, amount decimal.Decimal, idempotencyKey string) (models.Transaction, error)

	// ListTransactions is a read-only projection over committed transactions.
	ListTransactions(ctx context.Context, filter models.TransactionFilter) (models.TransactionPage, error)
}
