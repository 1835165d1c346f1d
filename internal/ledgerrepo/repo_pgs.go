// Package ledgerrepo executes money movement intents against Postgres.
package ledgerrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-petr/mini-bank/internal/accountrepo"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/internal/txnrepo"
	"github.com/go-petr/mini-bank/pkg/dbpkg"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/go-petr/mini-bank/pkg/refpkg"
	"github.com/rs/zerolog"
)

// RepoPGS runs every intent in a single database transaction.
type RepoPGS struct {
	conn        *sql.DB
	refs        *refpkg.Generator
	lockTimeout time.Duration
}

// NewRepoPGS returns ledger RepoPGS with connection to start transactions.
func NewRepoPGS(conn *sql.DB, refs *refpkg.Generator, lockTimeout time.Duration) *RepoPGS {
	return &RepoPGS{
		conn:        conn,
		refs:        refs,
		lockTimeout: lockTimeout,
	}
}

// Execute commits the intent at most once per (owner, request id).
//
// Within one transaction it reserves the request id, locks the accounts in
// ascending order, applies the deltas, records the legs and stores the receipt.
// A request id that was already committed returns the stored receipt with
// Replayed set. Rejected intents leave nothing behind.
func (r *RepoPGS) Execute(ctx context.Context, in domain.Intent) (domain.Receipt, error) {
	l := zerolog.Ctx(ctx)

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.Receipt{}, errorspkg.ErrInternal
	}

	defer func() {
		if err := dbpkg.Rollback(tx); err != nil {
			l.Error().Err(err).Send()
		}
	}()

	if r.lockTimeout > 0 {
		q := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, q); err != nil {
			l.Error().Err(err).Send()
			return domain.Receipt{}, errorspkg.ErrInternal
		}
	}

	if in.RequestID != "" {
		stored, replay, err := r.reserve(ctx, tx, in)
		if err != nil {
			return domain.Receipt{}, err
		}

		if replay {
			return stored, nil
		}
	}

	var receipt domain.Receipt

	switch in.Kind {
	case domain.IntentDeposit, domain.IntentWithdraw:
		receipt, err = r.single(ctx, tx, in)
	case domain.IntentTransfer:
		receipt, err = r.transfer(ctx, tx, in)
	default:
		err = fmt.Errorf("unknown intent kind %q", in.Kind)
		l.Error().Err(err).Send()

		return domain.Receipt{}, errorspkg.ErrInternal
	}

	if err != nil {
		return domain.Receipt{}, err
	}

	receipt.RequestID = in.RequestID
	receipt.Kind = in.Kind

	if in.RequestID != "" {
		if err := r.storeReceipt(ctx, tx, in, receipt); err != nil {
			return domain.Receipt{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		if dbpkg.IsContention(err) {
			l.Warn().Err(err).Msg("commit contention")
			return domain.Receipt{}, domain.ErrBusy
		}

		l.Error().Err(err).Send()

		return domain.Receipt{}, errorspkg.ErrInternal
	}

	return receipt, nil
}

func (r *RepoPGS) single(ctx context.Context, tx *sql.Tx, in domain.Intent) (domain.Receipt, error) {
	accounts := accountrepo.NewRepoPGS(tx)
	records := txnrepo.NewRepoPGS(tx, r.refs)

	locked, err := accounts.Lock(ctx, in.Account)
	if err != nil {
		return domain.Receipt{}, err
	}

	before := locked[in.Account].Balance
	txType, delta := domain.TypeDeposit, in.Amount

	if in.Kind == domain.IntentWithdraw {
		txType, delta = domain.TypeWithdraw, in.Amount.Neg()

		if before.LessThan(in.Amount) {
			return domain.Receipt{}, domain.InsufficientFunds(before)
		}
	}

	after, err := accounts.ApplyDelta(ctx, in.Account, delta)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.Receipt{}, domain.InsufficientFunds(before)
		}

		return domain.Receipt{}, err
	}

	rec, err := records.Record(ctx, domain.RecordParams{
		AccountNumber: in.Account,
		Type:          txType,
		Amount:        in.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   in.Description,
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	return domain.Receipt{
		Reference:    rec.Reference,
		Account:      in.Account,
		Amount:       in.Amount,
		NewBalance:   after,
		Transactions: []domain.Transaction{rec},
	}, nil
}

func (r *RepoPGS) transfer(ctx context.Context, tx *sql.Tx, in domain.Intent) (domain.Receipt, error) {
	accounts := accountrepo.NewRepoPGS(tx)
	records := txnrepo.NewRepoPGS(tx, r.refs)

	locked, err := accounts.Lock(ctx, in.Account, in.Counterparty)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Receipt{}, domain.ErrRecipientNotFound
		}

		return domain.Receipt{}, err
	}

	fromBefore := locked[in.Account].Balance
	toBefore := locked[in.Counterparty].Balance

	if fromBefore.LessThan(in.Amount) {
		return domain.Receipt{}, domain.InsufficientFunds(fromBefore)
	}

	fromAfter, err := accounts.ApplyDelta(ctx, in.Account, in.Amount.Neg())
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.Receipt{}, domain.InsufficientFunds(fromBefore)
		}

		return domain.Receipt{}, err
	}

	toAfter, err := accounts.ApplyDelta(ctx, in.Counterparty, in.Amount)
	if err != nil {
		return domain.Receipt{}, err
	}

	correlation := r.refs.Transfer()

	out, err := records.Record(ctx, domain.RecordParams{
		AccountNumber: in.Account,
		Type:          domain.TypeTransferOut,
		Amount:        in.Amount,
		BalanceBefore: fromBefore,
		BalanceAfter:  fromAfter,
		CorrelationID: correlation,
		Counterparty:  in.Counterparty,
		Description:   domain.TransferOutDescription(in),
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	inLeg, err := records.Record(ctx, domain.RecordParams{
		AccountNumber: in.Counterparty,
		Type:          domain.TypeTransferIn,
		Amount:        in.Amount,
		BalanceBefore: toBefore,
		BalanceAfter:  toAfter,
		CorrelationID: correlation,
		Counterparty:  in.Account,
		Description:   domain.TransferInDescription(in),
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	return domain.Receipt{
		Reference:    correlation,
		Account:      in.Account,
		Counterparty: in.Counterparty,
		Amount:       in.Amount,
		NewBalance:   fromAfter,
		Transactions: []domain.Transaction{out, inLeg},
	}, nil
}

const reserveQuery = `
INSERT INTO idempotency_keys (owner_id, request_id, fingerprint)
VALUES ($1, $2, $3)
ON CONFLICT (owner_id, request_id) DO NOTHING
`

const storedQuery = `
SELECT fingerprint, receipt
FROM idempotency_keys
WHERE owner_id = $1 AND request_id = $2
`

// reserve claims the request id. When the id is already committed it returns the
// stored receipt and true.
func (r *RepoPGS) reserve(ctx context.Context, tx *sql.Tx, in domain.Intent) (domain.Receipt, bool, error) {
	l := zerolog.Ctx(ctx)

	res, err := tx.ExecContext(ctx, reserveQuery, in.OwnerID, in.RequestID, in.Fingerprint())
	if err != nil {
		return domain.Receipt{}, false, mapErr(ctx, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return domain.Receipt{}, false, errorspkg.ErrInternal
	}

	if n == 1 {
		return domain.Receipt{}, false, nil
	}

	var (
		fingerprint string
		raw         sql.NullString
	)

	if err := tx.QueryRowContext(ctx, storedQuery, in.OwnerID, in.RequestID).Scan(&fingerprint, &raw); err != nil {
		return domain.Receipt{}, false, mapErr(ctx, err)
	}

	if fingerprint != in.Fingerprint() {
		l.Info().Str("request_id", in.RequestID).Msg("request id reused with a different intent")
		return domain.Receipt{}, false, domain.ErrIdempotencyKeyReuse
	}

	if !raw.Valid {
		return domain.Receipt{}, false, domain.ErrRequestInProgress
	}

	var stored domain.Receipt
	if err := json.Unmarshal([]byte(raw.String), &stored); err != nil {
		l.Error().Err(err).Send()
		return domain.Receipt{}, false, errorspkg.ErrInternal
	}

	stored.Replayed = true

	return stored, true, nil
}

const storeReceiptQuery = `
UPDATE idempotency_keys
SET receipt = $3
WHERE owner_id = $1 AND request_id = $2
`

func (r *RepoPGS) storeReceipt(ctx context.Context, tx *sql.Tx, in domain.Intent, receipt domain.Receipt) error {
	b, err := json.Marshal(receipt)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if _, err := tx.ExecContext(ctx, storeReceiptQuery, in.OwnerID, in.RequestID, string(b)); err != nil {
		return mapErr(ctx, err)
	}

	return nil
}

const purgeQuery = `
DELETE FROM idempotency_keys
WHERE created_at < $1
`

// PurgeIdempotency removes idempotency records created before the given time.
func (r *RepoPGS) PurgeIdempotency(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.conn.ExecContext(ctx, purgeQuery, before)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Send()
		return 0, errorspkg.ErrInternal
	}

	return res.RowsAffected()
}

func mapErr(ctx context.Context, err error) error {
	l := zerolog.Ctx(ctx)

	if dbpkg.IsContention(err) {
		l.Warn().Err(err).Msg("lock contention")
		return domain.ErrBusy
	}

	l.Error().Err(err).Send()

	return errorspkg.ErrInternal
}
