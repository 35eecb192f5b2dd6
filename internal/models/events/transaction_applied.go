package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionApplied is published after a transaction commits.
type TransactionApplied struct {
	EventID       string          `json:"event_id"`
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
