package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/account-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-service/internal/models"
	"github.com/sheikh-saqib/account-ledger-service/internal/models/events"
	"github.com/shopspring/decimal"
)

// TopicTransactionApplied is the event topic for committed transactions.
const TopicTransactionApplied = "transaction_applied"

// Ledger is the operation layer callers go through. The funds rule itself
// lives in the store's ApplyTransaction; this layer validates input shape,
// retries once on a concurrency conflict, and publishes events after commit.
type Ledger struct {
	store     interfaces.LedgerStore
	publisher interfaces.EventPublisher // nil disables publishing
	logger    *slog.Logger
}

// NewLedger wires the service over a storage implementation. publisher may be
// nil when no event sink is configured.
func NewLedger(store interfaces.LedgerStore, publisher interfaces.EventPublisher, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit applies one transaction against an account and returns the committed
// result. Funds-insufficiency and validation failures are never retried; a
// concurrency conflict is retried exactly once.
func (l *Ledger) Submit(ctx context.Context, accountID int64, typ models.TransactionType, amount decimal.Decimal, idempotencyKey string) (models.Transaction, error) {
	tx, err := l.store.ApplyTransaction(ctx, accountID, typ, amount, idempotencyKey)
	if errors.Is(err, models.ErrConcurrencyConflict) {
		l.logger.Warn("retrying after concurrency conflict", "account_id", accountID)
		tx, err = l.store.ApplyTransaction(ctx, accountID, typ, amount, idempotencyKey)
	}
	if err != nil {
		return models.Transaction{}, err
	}

	l.publishApplied(tx)
	return tx, nil
}

// publishApplied emits the committed transaction. Best-effort: a publish
// failure is logged, never propagated, and never rolls anything back.
func (l *Ledger) publishApplied(tx models.Transaction) {
	if l.publisher == nil {
		return
	}
	event := events.TransactionApplied{
		EventID:       uuid.New().String(),
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		BalanceAfter:  tx.BalanceAfter,
		OccurredAt:    time.Now(),
	}
	if err := l.publisher.Publish(TopicTransactionApplied, event); err != nil {
		l.logger.Error("failed to publish transaction event", "transaction_id", tx.ID, "error", err)
	}
}

func (l *Ledger) CreateAccount(ctx context.Context, iban string, initialBalance decimal.Decimal) (models.Account, error) {
	return l.store.CreateAccount(ctx, iban, initialBalance)
}

func (l *Ledger) GetAccount(ctx context.Context, id int64) (models.Account, error) {
	return l.store.GetAccount(ctx, id)
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return l.store.ListAccounts(ctx)
}

func (l *Ledger) UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) (models.Account, error) {
	return l.store.UpdateAccount(ctx, id, patch)
}

func (l *Ledger) DeleteAccount(ctx context.Context, id int64) error {
	return l.store.DeleteAccount(ctx, id)
}

func (l *Ledger) ListTransactions(ctx context.Context, filter models.TransactionFilter) (models.TransactionPage, error) {
	return l.store.ListTransactions(ctx, filter)
}
