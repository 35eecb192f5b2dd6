package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	interfaces "github.com/sheikh-saqib/account-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-service/internal/models"
	"github.com/shopspring/decimal"
)

// PostgresLedgerStore persists the ledger in PostgreSQL. Exclusive access is
// a row lock (SELECT ... FOR UPDATE) held for the duration of the application
// transaction, so the funds check and the two writes are one isolated unit.
type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// Migrate creates the ledger tables if they do not exist.
func (p *PostgresLedgerStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         BIGSERIAL PRIMARY KEY,
	iban       TEXT UNIQUE NOT NULL,
	balance    NUMERIC(12,2) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS transactions (
	id              BIGSERIAL PRIMARY KEY,
	account_id      BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	date            TIMESTAMPTZ NOT NULL DEFAULT now(),
	type            TEXT NOT NULL,
	amount          NUMERIC(12,2) NOT NULL,
	balance_after   NUMERIC(12,2) NOT NULL,
	idempotency_key TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS transactions_account_date_idx ON transactions (account_id, date);`

	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, iban string, initialBalance decimal.Decimal) (models.Account, error) {
	if initialBalance.IsNegative() || initialBalance.Exponent() < -2 {
		return models.Account{}, models.ErrInvalidAmount
	}

	const query = `INSERT INTO accounts (iban, balance) VALUES ($1, $2)
	RETURNING id, iban, balance, created_at`

	var acct models.Account
	err := p.db.QueryRowContext(ctx, query, iban, initialBalance).Scan(
		&acct.ID, &acct.IBAN, &acct.Balance, &acct.CreatedAt,
	)
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return acct, nil
}

func (p *PostgresLedgerStore) GetAccount(ctx context.Context, id int64) (models.Account, error) {
	const query = `SELECT id, iban, balance, created_at FROM accounts WHERE id = $1`

	var acct models.Account
	err := p.db.QueryRowContext(ctx, query, id).Scan(&acct.ID, &acct.IBAN, &acct.Balance, &acct.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Account{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

func (p *PostgresLedgerStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	const query = `SELECT id, iban, balance, created_at FROM accounts ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var acct models.Account
		if err := rows.Scan(&acct.ID, &acct.IBAN, &acct.Balance, &acct.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (p *PostgresLedgerStore) UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) (models.Account, error) {
	if patch.IBAN == nil {
		return p.GetAccount(ctx, id)
	}

	const query = `UPDATE accounts SET iban = $2 WHERE id = $1
	RETURNING id, iban, balance, created_at`

	var acct models.Account
	err := p.db.QueryRowContext(ctx, query, id, *patch.IBAN).Scan(
		&acct.ID, &acct.IBAN, &acct.Balance, &acct.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Account{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return acct, nil
}

func (p *PostgresLedgerStore) DeleteAccount(ctx context.Context, id int64) error {
	// Transactions go with the account via ON DELETE CASCADE.
	res, err := p.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func (p *PostgresLedgerStore) ApplyTransaction(ctx context.Context, accountID int64, typ models.TransactionType, amount decimal.Decimal, idempotencyKey string) (models.Transaction, error) {
	if !typ.Valid() {
		return models.Transaction{}, models.ErrUnknownTransactionType
	}
	if !models.ValidAmount(amount) {
		return models.Transaction{}, models.ErrInvalidAmount
	}

	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Transaction{}, mapError(err)
	}

	tx, err := p.applyInTx(ctx, dbTx, accountID, typ, amount, idempotencyKey)
	if err != nil {
		dbTx.Rollback()
		return models.Transaction{}, mapError(err)
	}
	if err := dbTx.Commit(); err != nil {
		return models.Transaction{}, mapError(err)
	}
	return tx, nil
}

func (p *PostgresLedgerStore) applyInTx(ctx context.Context, dbTx *sql.Tx, accountID int64, typ models.TransactionType, amount decimal.Decimal, idempotencyKey string) (models.Transaction, error) {
	if idempotencyKey != "" {
		const lookup = `SELECT id, account_id, date, type, amount, balance_after, idempotency_key
		FROM transactions WHERE idempotency_key = $1`

		var prior models.Transaction
		err := dbTx.QueryRowContext(ctx, lookup, idempotencyKey).Scan(
			&prior.ID, &prior.AccountID, &prior.Date, &prior.Type,
			&prior.Amount, &prior.BalanceAfter, &prior.IdempotencyKey,
		)
		if err == nil {
			return prior, nil
		}
		if err != sql.ErrNoRows {
			return models.Transaction{}, err
		}
	}

	// Row lock: concurrent applications against the same account queue here.
	var balance decimal.Decimal
	err := dbTx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return models.Transaction{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}

	newBalance := balance.Add(models.SignedAmount(typ, amount))
	if newBalance.IsNegative() {
		return models.Transaction{}, models.ErrInsufficientFunds
	}

	if _, err := dbTx.ExecContext(ctx,
		`UPDATE accounts SET balance = $2 WHERE id = $1`, accountID, newBalance,
	); err != nil {
		return models.Transaction{}, err
	}

	const insert = `INSERT INTO transactions (account_id, type, amount, balance_after, idempotency_key)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	RETURNING id, date`

	tx := models.Transaction{
		AccountID:      accountID,
		Type:           typ,
		Amount:         amount,
		BalanceAfter:   newBalance,
		IdempotencyKey: idempotencyKey,
	}
	if err := dbTx.QueryRowContext(ctx, insert,
		accountID, typ, amount, newBalance, idempotencyKey,
	).Scan(&tx.ID, &tx.Date); err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

func (p *PostgresLedgerStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) (models.TransactionPage, error) {
	where := []string{"1=1"}
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AccountID != 0 {
		where = append(where, "account_id = "+arg(filter.AccountID))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		where = append(where, "type = ANY("+arg(pq.Array(types))+")")
	}
	if filter.StartDate != nil {
		where = append(where, "date >= "+arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		// Inclusive date bound: everything before the next day.
		where = append(where, "date < "+arg(filter.EndDate.AddDate(0, 0, 1)))
	}
	cond := strings.Join(where, " AND ")

	page := models.TransactionPage{Results: []models.Transaction{}}
	if err := p.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE "+cond, args...,
	).Scan(&page.Count); err != nil {
		return models.TransactionPage{}, err
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

	query := fmt.Sprintf(
		`SELECT id, account_id, date, type, amount, balance_after, COALESCE(idempotency_key, '')
		FROM transactions WHERE %s ORDER BY %s LIMIT %s OFFSET %s`,
		cond, order, arg(pageSize), arg((pageNum-1)*pageSize),
	)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.TransactionPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Date, &tx.Type, &tx.Amount, &tx.BalanceAfter, &tx.IdempotencyKey); err != nil {
			return models.TransactionPage{}, err
		}
		page.Results = append(page.Results, tx)
	}
	if err := rows.Err(); err != nil {
		return models.TransactionPage{}, err
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

// mapError translates driver errors into the domain taxonomy.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pqErr.Constraint, "iban") {
				return models.ErrDuplicateIBAN
			}
			return models.ErrConcurrencyConflict
		case "40001", "40P01", "55P03": // serialization, deadlock, lock not available
			return models.ErrConcurrencyConflict
		}
	}
	return err
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
