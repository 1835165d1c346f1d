// Package txnrepo manages repository layer of transaction records.
package txnrepo

import (
	"context"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/dbpkg"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/go-petr/mini-bank/pkg/refpkg"
	"github.com/rs/zerolog"
)

// RepoPGS appends and reads transaction records.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	refs *refpkg.Generator
}

// NewRepoPGS returns transaction RepoPGS issuing references with refs.
func NewRepoPGS(db dbpkg.SQLInterface, refs *refpkg.Generator) *RepoPGS {
	return &RepoPGS{
		db:   db,
		refs: refs,
	}
}

const columns = `
	id,
	reference,
	account_number,
	type,
	amount,
	balance_before,
	balance_after,
	correlation_id,
	counterparty,
	description,
	created_at`

func scan(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var t domain.Transaction

	err := row.Scan(
		&t.ID,
		&t.Reference,
		&t.AccountNumber,
		&t.Type,
		&t.Amount,
		&t.BalanceBefore,
		&t.BalanceAfter,
		&t.CorrelationID,
		&t.Counterparty,
		&t.Description,
		&t.CreatedAt,
	)

	return t, err
}

// recordQuery keeps created_at strictly increasing per account. The caller holds
// the account row lock, so the max cannot change underneath.
const recordQuery = `
INSERT INTO transactions (
	reference,
	account_number,
	type,
	amount,
	balance_before,
	balance_after,
	correlation_id,
	counterparty,
	description,
	created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9,
	GREATEST(
		clock_timestamp(),
		(SELECT max(created_at) FROM transactions WHERE account_number = $2) + interval '1 microsecond'
	)
) RETURNING` + columns

// Record appends a transaction record and returns it.
func (r *RepoPGS) Record(ctx context.Context, arg domain.RecordParams) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	if arg.Reference == "" {
		arg.Reference = r.refs.Transaction()
	}

	row := r.db.QueryRowContext(ctx, recordQuery,
		arg.Reference,
		arg.AccountNumber,
		arg.Type,
		arg.Amount,
		arg.BalanceBefore,
		arg.BalanceAfter,
		arg.CorrelationID,
		arg.Counterparty,
		arg.Description,
	)

	t, err := scan(row)
	if err != nil {
		l.Error().Err(err).Msgf("Record(ctx, %+v)", arg)

		if dbpkg.Constraint(err) == "transactions_account_number_fkey" {
			return domain.Transaction{}, domain.ErrAccountNotFound
		}

		if dbpkg.IsContention(err) {
			return domain.Transaction{}, domain.ErrBusy
		}

		return domain.Transaction{}, errorspkg.ErrInternal
	}

	return t, nil
}

const listQuery = `
SELECT` + columns + `
FROM transactions
WHERE account_number = $1 AND ($2::bigint = 0 OR id < $2)
ORDER BY id DESC
LIMIT $3 OFFSET $4
`

// List returns a page of the account's records, newest first.
func (r *RepoPGS) List(ctx context.Context, arg domain.ListTransactionsParams) ([]domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery,
		arg.AccountNumber,
		arg.Cursor,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Transaction{}

	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, t)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}
