package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a bank account holding a running balance.
type Account struct {
	ID        int64           // unique identifier, monotonically assigned
	IBAN      string          // unique account identifier string
	Balance   decimal.Decimal // current balance, 2 decimal places
	CreatedAt time.Time       // timestamp
}

// AccountPatch carries a partial update of an account's mutable fields.
// Balance is deliberately absent: it only changes when a transaction commits.
type AccountPatch struct {
	IBAN *string
}
