// Package accountrepo manages repository layer of accounts.
package accountrepo

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/dbpkg"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RepoPGS facilitates account repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns account RepoPGS.
//
// Pass a *sql.Tx to run Lock and ApplyDelta inside a transaction.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const columns = `account_number, owner_id, account_type, balance, created_at`

func scan(row interface{ Scan(...any) error }) (domain.Account, error) {
	var a domain.Account

	err := row.Scan(
		&a.Number,
		&a.OwnerID,
		&a.Type,
		&a.Balance,
		&a.CreatedAt,
	)

	return a, err
}

const createQuery = `
INSERT INTO
    accounts (account_number, owner_id, account_type)
VALUES
    ($1, $2, $3)
RETURNING ` + columns

// Create creates the account with zero balance and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scan(r.db.QueryRowContext(ctx, createQuery, arg.Number, arg.OwnerID, arg.Type))
	if err != nil {
		l.Error().Err(err).Send()

		switch dbpkg.Constraint(err) {
		case "accounts_owner_id_fkey":
			return domain.Account{}, domain.ErrOwnerNotFound
		case "accounts_owner_id_account_type_key":
			return domain.Account{}, domain.ErrAccountAlreadyExists
		case "accounts_pkey":
			return domain.Account{}, domain.ErrAccountNumberTaken
		case "accounts_account_type_check":
			return domain.Account{}, domain.ErrInvalidAccountType
		}

		return domain.Account{}, errorspkg.ErrInternal
	}

	return a, nil
}

const getQuery = `
SELECT ` + columns + `
FROM accounts
WHERE account_number = $1
`

// Get returns the account with the given number.
func (r *RepoPGS) Get(ctx context.Context, number string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scan(r.db.QueryRowContext(ctx, getQuery, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, errorspkg.ErrInternal
	}

	return a, nil
}

const listQuery = `
SELECT ` + columns + `
FROM accounts
WHERE owner_id = $1
ORDER BY created_at, account_number
`

// List returns all accounts of the owner, oldest first.
func (r *RepoPGS) List(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery, ownerID)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Account{}

	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, a)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}

const lockQuery = `
SELECT ` + columns + `
FROM accounts
WHERE account_number = $1
FOR UPDATE
`

// Lock takes row locks on the accounts in ascending account number order and
// returns them keyed by number. It must run inside a transaction.
func (r *RepoPGS) Lock(ctx context.Context, numbers ...string) (map[string]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	sorted := append([]string(nil), numbers...)
	sort.Strings(sorted)

	locked := make(map[string]domain.Account, len(sorted))

	for _, n := range sorted {
		if _, ok := locked[n]; ok {
			continue
		}

		a, err := scan(r.db.QueryRowContext(ctx, lockQuery, n))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.ErrAccountNotFound
			}

			if dbpkg.IsContention(err) {
				l.Warn().Err(err).Str("account_number", n).Msg("lock contention")
				return nil, domain.ErrBusy
			}

			l.Error().Err(err).Send()

			return nil, errorspkg.ErrInternal
		}

		locked[n] = a
	}

	return locked, nil
}

const getBalanceQuery = `
SELECT balance
FROM accounts
WHERE account_number = $1
`

// GetBalance returns the committed balance of the account.
func (r *RepoPGS) GetBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	l := zerolog.Ctx(ctx)

	var balance decimal.Decimal

	err := r.db.QueryRowContext(ctx, getBalanceQuery, number).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return decimal.Zero, errorspkg.ErrInternal
	}

	return balance, nil
}

const applyDeltaQuery = `
UPDATE accounts
SET balance = balance + $1
WHERE account_number = $2
RETURNING balance
`

// ApplyDelta adds the signed delta to the balance and returns the new balance.
//
// A balance that would become negative violates accounts_balance_check and is
// reported as domain.ErrInsufficientFunds. One at moneypkg.Max or above violates
// accounts_balance_limit and is reported as domain.ErrBalanceLimit.
func (r *RepoPGS) ApplyDelta(ctx context.Context, number string, delta decimal.Decimal) (decimal.Decimal, error) {
	l := zerolog.Ctx(ctx)

	var balance decimal.Decimal

	err := r.db.QueryRowContext(ctx, applyDeltaQuery, delta, number).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, domain.ErrAccountNotFound
		}

		switch dbpkg.Constraint(err) {
		case "accounts_balance_check":
			return decimal.Zero, domain.ErrInsufficientFunds
		case "accounts_balance_limit":
			return decimal.Zero, domain.ErrBalanceLimit
		}

		if dbpkg.IsContention(err) {
			l.Warn().Err(err).Str("account_number", number).Msg("lock contention")
			return decimal.Zero, domain.ErrBusy
		}

		l.Error().Err(err).Send()

		return decimal.Zero, errorspkg.ErrInternal
	}

	return balance, nil
}
