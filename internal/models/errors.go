package models

import "errors"

var (
	// ErrAccountNotFound is returned when the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateIBAN is returned when the account identifier is already in use.
	ErrDuplicateIBAN = errors.New("account iban already in use")

	// ErrInvalidAmount is returned for a non-positive amount or one with more
	// than two decimal places. Detected before any state change.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")

	// ErrInsufficientFunds is returned when a debit would drive the balance
	// negative. Nothing is applied.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownTransactionType is returned for a type outside
	// deposit/withdrawal/transfer.
	ErrUnknownTransactionType = errors.New("unknown transaction type")

	// ErrConcurrencyConflict is returned when exclusive access to an account
	// could not be obtained or an optimistic check failed. The transaction
	// service retries once before surfacing it.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)
