package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/account-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-service/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Exclusive access is one mutex per account, so operations on different
// accounts never block each other; a store-level RWMutex makes each commit
// atomic to readers (balance and history change together or not at all).
type MemoryLedgerStore struct {
	mu           sync.RWMutex // protects the maps and slices below
	accounts     map[int64]*models.Account
	ibans        map[string]int64 // iban -> account id
	transactions []models.Transaction
	byKey        map[string]int64 // idempotency key -> transaction id

	acctMu map[int64]*sync.Mutex // per-account application locks
	mapMu  sync.Mutex            // protects acctMu itself

	nextAccountID int64
	nextTxID      int64
}

// NewMemoryLedgerStore creates an empty in-memory store.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts: make(map[int64]*models.Account),
		ibans:    make(map[string]int64),
		byKey:    make(map[string]int64),
		acctMu:   make(map[int64]*sync.Mutex),
	}
}

func (m *MemoryLedgerStore) accountLock(accountID int64) *sync.Mutex {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()

	if _, exists := m.acctMu[accountID]; !exists {
		m.acctMu[accountID] = &sync.Mutex{}
	}
	return m.acctMu[accountID]
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, iban string, initialBalance decimal.Decimal) (models.Account, error) {
	if initialBalance.IsNegative() || initialBalance.Exponent() < -2 {
		return models.Account{}, models.ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.ibans[iban]; taken {
		return models.Account{}, models.ErrDuplicateIBAN
	}

	m.nextAccountID++
	acct := &models.Account{
		ID:        m.nextAccountID,
		IBAN:      iban,
		Balance:   initialBalance,
		CreatedAt: time.Now(),
	}
	m.accounts[acct.ID] = acct
	m.ibans[iban] = acct.ID
	return *acct, nil
}

func (m *MemoryLedgerStore) GetAccount(ctx context.Context, id int64) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[id]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	return *acct, nil
}

func (m *MemoryLedgerStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		out = append(out, *acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryLedgerStore) UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	if patch.IBAN != nil && *patch.IBAN != acct.IBAN {
		if _, taken := m.ibans[*patch.IBAN]; taken {
			return models.Account{}, models.ErrDuplicateIBAN
		}
		delete(m.ibans, acct.IBAN)
		acct.IBAN = *patch.IBAN
		m.ibans[acct.IBAN] = id
	}
	return *acct, nil
}

func (m *MemoryLedgerStore) DeleteAccount(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	delete(m.ibans, acct.IBAN)
	delete(m.accounts, id)

	// Cascade: drop the account's transaction history.
	kept := m.transactions[:0]
	for _, tx := range m.transactions {
		if tx.AccountID == id {
			if tx.IdempotencyKey != "" {
				delete(m.byKey, tx.IdempotencyKey)
			}
			continue
		}
		kept = append(kept, tx)
	}
	m.transactions = kept
	return nil
}

// ApplyTransaction holds the target account's lock across the whole
// read-check-write, then commits balance and transaction under the store
// lock so readers never see one without the other.
func (m *MemoryLedgerStore) ApplyTransaction(ctx context.Context, accountID int64, typ models.TransactionType, amount decimal.Decimal, idempotencyKey string) (models.Transaction, error) {
	if !typ.Valid() {
		return models.Transaction{}, models.ErrUnknownTransactionType
	}
	if !models.ValidAmount(amount) {
		return models.Transaction{}, models.ErrInvalidAmount
	}

	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	if idempotencyKey != "" {
		if txID, seen := m.byKey[idempotencyKey]; seen {
			for _, tx := range m.transactions {
				if tx.ID == txID {
					m.mu.RUnlock()
					return tx, nil
				}
			}
		}
	}
	acct, ok := m.accounts[accountID]
	if !ok {
		m.mu.RUnlock()
		return models.Transaction{}, models.ErrAccountNotFound
	}
	balance := acct.Balance
	m.mu.RUnlock()

	// The per-account lock is still held: balance cannot move under us
	// between the read above and the commit below.
	newBalance := balance.Add(models.SignedAmount(typ, amount))
	if newBalance.IsNegative() {
		return models.Transaction{}, models.ErrInsufficientFunds
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok = m.accounts[accountID]
	if !ok {
		// Deleted while we were checking funds.
		return models.Transaction{}, models.ErrAccountNotFound
	}

	m.nextTxID++
	tx := models.Transaction{
		ID:             m.nextTxID,
		AccountID:      accountID,
		Date:           time.Now(),
		Type:           typ,
		Amount:         amount,
		BalanceAfter:   newBalance,
		IdempotencyKey: idempotencyKey,
	}
	acct.Balance = newBalance
	m.transactions = append(m.transactions, tx)
	if idempotencyKey != "" {
		m.byKey[idempotencyKey] = tx.ID
	}
	return tx, nil
}

func (m *MemoryLedgerStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) (models.TransactionPage, error) {
	m.mu.RLock()
	matched := make([]models.Transaction, 0)
	for _, tx := range m.transactions {
		if filter.Matches(tx) {
			matched = append(matched, tx)
		}
	}
	m.mu.RUnlock()

	asc := filter.Ordering == models.OrderDateAsc
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Date.Equal(b.Date) {
			if asc {
				return a.Date.Before(b.Date)
			}
			return a.Date.After(b.Date)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	return paginate(matched, filter.Page, filter.PageSize), nil
}

// paginate slices an already-ordered result set into a fixed-size page with
// count and adjacent page numbers.
func paginate(all []models.Transaction, page, pageSize int) models.TransactionPage {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}

	out := models.TransactionPage{Count: len(all), Results: []models.Transaction{}}

	start := (page - 1) * pageSize
	if start < len(all) {
		end := start + pageSize
		if end > len(all) {
			end = len(all)
		}
		out.Results = append(out.Results, all[start:end]...)
	}

	totalPages := (len(all) + pageSize - 1) / pageSize
	if page < totalPages {
		next := page + 1
		out.Next = &next
	}
	if page > 1 && page <= totalPages {
		prev := page - 1
		out.Previous = &prev
	}
	return out
}

// Compile-time check: MemoryLedgerStore implements LedgerStore.
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
