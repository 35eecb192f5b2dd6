package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/account-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-service/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// accountRow and transactionRow are the gorm-mapped table shapes.
type accountRow struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	IBAN      string          `gorm:"column:iban;uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt time.Time
}

func (accountRow) TableName() string { return "accounts" }

type transactionRow struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	AccountID      int64           `gorm:"index:idx_tx_account_date;not null"`
	Date           time.Time       `gorm:"index:idx_tx_account_date;not null"`
	Type           string          `gorm:"not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceAfter   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IdempotencyKey *string         `gorm:"uniqueIndex"`
}

func (transactionRow) TableName() string { return "transactions" }

// SQLiteLedgerStore is a gorm-backed embedded store for single-process
// deployments. SQLite already serializes writers; the per-account mutex map
// on top keeps the funds check race-free without blocking other accounts on
// the database write lock longer than necessary.
type SQLiteLedgerStore struct {
	db *gorm.DB

	acctMu map[int64]*sync.Mutex
	mapMu  sync.Mutex
}

// NewSQLiteLedgerStore opens (or creates) the database file and migrates the
// schema.
func NewSQLiteLedgerStore(dbPath string) (*SQLiteLedgerStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&accountRow{}, &transactionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteLedgerStore{
		db:     db,
		acctMu: make(map[int64]*sync.Mutex),
	}, nil
}

func (s *SQLiteLedgerStore) accountLock(accountID int64) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	if _, exists := s.acctMu[accountID]; !exists {
		s.acctMu[accountID] = &sync.Mutex{}
	}
	return s.acctMu[accountID]
}

func (s *SQLiteLedgerStore) CreateAccount(ctx context.Context, iban string, initialBalance decimal.Decimal) (models.Account, error) {
	if initialBalance.IsNegative() || initialBalance.Exponent() < -2 {
		return models.Account{}, models.ErrInvalidAmount
	}

	row := accountRow{IBAN: iban, Balance: initialBalance}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Account{}, mapError(err)
	}
	return row.toModel(), nil
}

func (s *SQLiteLedgerStore) GetAccount(ctx context.Context, id int64) (models.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return models.Account{}, mapError(err)
	}
	return row.toModel(), nil
}

func (s *SQLiteLedgerStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	accounts := make([]models.Account, len(rows))
	for i, row := range rows {
		accounts[i] = row.toModel()
	}
	return accounts, nil
}

func (s *SQLiteLedgerStore) UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) (models.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, id).Error; err != nil {
			return err
		}
		if patch.IBAN != nil && *patch.IBAN != row.IBAN {
			row.IBAN = *patch.IBAN
			if err := tx.Model(&row).Update("iban", row.IBAN).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return row.toModel(), nil
}

func (s *SQLiteLedgerStore) DeleteAccount(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&accountRow{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrAccountNotFound
		}
		// Cascade the transaction history.
		return tx.Where("account_id = ?", id).Delete(&transactionRow{}).Error
	})
	return mapError(err)
}

func (s *SQLiteLedgerStore) ApplyTransaction(ctx context.Context, accountID int64, typ models.TransactionType, amount decimal.Decimal, idempotencyKey string) (models.Transaction, error) {
	if !typ.Valid() {
		return models.Transaction{}, models.ErrUnknownTransactionType
	}
	if !models.ValidAmount(amount) {
		return models.Transaction{}, models.ErrInvalidAmount
	}

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	var out transactionRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			var prior transactionRow
			err := tx.Where("idempotency_key = ?", idempotencyKey).First(&prior).Error
			if err == nil {
				out = prior
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var acct accountRow
		if err := tx.First(&acct, accountID).Error; err != nil {
			return err
		}

		newBalance := acct.Balance.Add(models.SignedAmount(typ, amount))
		if newBalance.IsNegative() {
			return models.ErrInsufficientFunds
		}

		if err := tx.Model(&acct).Update("balance", newBalance).Error; err != nil {
			return err
		}

		out = transactionRow{
			AccountID:    accountID,
			Date:         time.Now(),
			Type:         string(typ),
			Amount:       amount,
			BalanceAfter: newBalance,
		}
		if idempotencyKey != "" {
			out.IdempotencyKey = &idempotencyKey
		}
		return tx.Create(&out).Error
	})
	if err != nil {
		return models.Transaction{}, mapError(err)
	}
	return out.toModel(), nil
}

func (s *SQLiteLedgerStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) (models.TransactionPage, error) {
	q := s.db.WithContext(ctx).Model(&transactionRow{})
	if filter.AccountID != 0 {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		q = q.Where("type IN ?", types)
	}
	if filter.StartDate != nil {
		q = q.Where("date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("date < ?", filter.EndDate.AddDate(0, 0, 1))
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return models.TransactionPage{}, mapError(err)
	}

	order := "date DESC, id DESC"
	if filter.Ordering == models.OrderDateAsc {
		order = "date ASC, id ASC"
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	pageNum := filter.Page
	if pageNum <= 0 {
		pageNum = 1
	}

	var rows []transactionRow
	if err := q.Order(order).Limit(pageSize).Offset((pageNum - 1) * pageSize).Find(&rows).Error; err != nil {
		return models.TransactionPage{}, mapError(err)
	}

	page := models.TransactionPage{Count: int(count), Results: make([]models.Transaction, len(rows))}
	for i, row := range rows {
		page.Results[i] = row.toModel()
	}

	totalPages := (page.Count + pageSize - 1) / pageSize
	if pageNum < totalPages {
		next := pageNum + 1
		page.Next = &next
	}
	if pageNum > 1 && pageNum <= totalPages {
		prev := pageNum - 1
		page.Previous = &prev
	}
	return page, nil
}

func (r accountRow) toModel() models.Account {
	return models.Account{ID: r.ID, IBAN: r.IBAN, Balance: r.Balance, CreatedAt: r.CreatedAt}
}

func (r transactionRow) toModel() models.Transaction {
	tx := models.Transaction{
		ID:           r.ID,
		AccountID:    r.AccountID,
		Date:         r.Date,
		Type:         models.TransactionType(r.Type),
		Amount:       r.Amount,
		BalanceAfter: r.BalanceAfter,
	}
	if r.IdempotencyKey != nil {
		tx.IdempotencyKey = *r.IdempotencyKey
	}
	return tx
}

// mapError translates gorm/sqlite errors into the domain taxonomy.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrAccountNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed: accounts.iban"):
		return models.ErrDuplicateIBAN
	case strings.Contains(err.Error(), "database is locked"):
		return models.ErrConcurrencyConflict
	}
	return err
}

var _ interfaces.LedgerStore = (*SQLiteLedgerStore)(nil)
