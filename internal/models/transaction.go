package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a transaction. The sign of the balance change is
// implied by the type; the stored amount is always positive.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer" // debit out of the system, no counterparty
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer:
		return true
	}
	return false
}

// Transaction represents a single committed application against an account.
type Transaction struct {
	ID             int64
	AccountID      int64
	Date           time.Time // server-assigned creation time
	Type           TransactionType
	Amount         decimal.Decimal // positive; sign implied by Type
	BalanceAfter   decimal.Decimal // account balance immediately after this transaction
	IdempotencyKey string          // optional caller-supplied key, unique when set
}

// SignedAmount returns the amount with the sign implied by the transaction
// type: positive for deposits, negative for withdrawals and transfers.
func (t Transaction) SignedAmount() decimal.Decimal {
	return SignedAmount(t.Type, t.Amount)
}

// SignedAmount applies the sign implied by typ to a positive amount.
func SignedAmount(typ TransactionType, amount decimal.Decimal) decimal.Decimal {
	if typ == TypeDeposit {
		return amount
	}
	return amount.Neg()
}

// ValidAmount reports whether amount is usable as a transaction amount:
// strictly positive with at most two decimal places.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Exponent() >= -2
}
