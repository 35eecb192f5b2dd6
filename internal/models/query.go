package models

import "time"

// Ordering values accepted by TransactionFilter, matching the query surface:
// "date" for ascending, "-date" for descending.
const (
	OrderDateAsc  = "date"
	OrderDateDesc = "-date"
)

// DefaultPageSize is the fixed page size used when a filter does not set one.
const DefaultPageSize = 10

// TransactionFilter selects a page of transaction history.
// Zero-value fields mean "no constraint"; Page counts from 1.
type TransactionFilter struct {
	AccountID int64             // 0 = all accounts
	Types     []TransactionType // empty = all types
	StartDate *time.Time        // inclusive lower bound on Date
	EndDate   *time.Time        // inclusive upper bound on Date (whole day)
	Ordering  string            // OrderDateAsc or OrderDateDesc; default descending
	Page      int               // 1-based page number; 0 means first page
	PageSize  int               // fixed by the caller; 0 means the store default
}

// Matches reports whether tx passes the filter's type and date constraints.
// Pagination and ordering are applied by the store, not here.
func (f TransactionFilter) Matches(tx Transaction) bool {
	if f.AccountID != 0 && tx.AccountID != f.AccountID {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if tx.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.StartDate != nil && tx.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil {
		// EndDate is an inclusive date bound: anything before the start of
		// the following day passes.
		if !tx.Date.Before(f.EndDate.AddDate(0, 0, 1)) {
			return false
		}
	}
	return true
}

// TransactionPage is one page of filtered transaction history.
// Next and Previous hold adjacent page numbers, nil at either edge.
type TransactionPage struct {
	Count    int
	Next     *int
	Previous *int
	Results  []Transaction
}
