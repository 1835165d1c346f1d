package memstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/rs/zerolog"
)

// LedgerRepo executes money movement intents in memory.
type LedgerRepo struct {
	s *Store
}

// Execute commits the intent at most once per (owner, request id).
//
// A duplicate of a committed intent returns the stored receipt with Replayed set.
// A duplicate that arrives while the first one is still running fails with
// domain.ErrRequestInProgress. Rejected intents leave nothing behind.
func (r *LedgerRepo) Execute(ctx context.Context, in domain.Intent) (domain.Receipt, error) {
	key := idemKey{owner: in.OwnerID, requestID: in.RequestID}

	if in.RequestID != "" {
		stored, replay, err := r.reserve(key, in)
		if err != nil || replay {
			return stored, err
		}
	}

	receipt, err := r.apply(ctx, in)

	if in.RequestID != "" {
		r.s.mu.Lock()
		if err != nil {
			delete(r.s.idem, key)
		} else {
			stored := receipt
			stored.Transactions = append([]domain.Transaction(nil), receipt.Transactions...)
			r.s.idem[key].receipt = &stored
		}
		r.s.mu.Unlock()
	}

	return receipt, err
}

func (r *LedgerRepo) reserve(key idemKey, in domain.Intent) (domain.Receipt, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.idem[key]
	if !ok {
		r.s.idem[key] = &idemEntry{fingerprint: in.Fingerprint(), createdAt: r.s.now()}
		return domain.Receipt{}, false, nil
	}

	if e.fingerprint != in.Fingerprint() {
		return domain.Receipt{}, false, domain.ErrIdempotencyKeyReuse
	}

	if e.receipt == nil {
		return domain.Receipt{}, false, domain.ErrRequestInProgress
	}

	replay := *e.receipt
	replay.Transactions = append([]domain.Transaction(nil), e.receipt.Transactions...)
	replay.Replayed = true

	return replay, true, nil
}

func (r *LedgerRepo) apply(ctx context.Context, in domain.Intent) (domain.Receipt, error) {
	numbers := []string{in.Account}
	if in.Kind == domain.IntentTransfer {
		numbers = append(numbers, in.Counterparty)
	}

	release, err := r.s.acquire(ctx, numbers...)
	if err != nil {
		if in.Kind == domain.IntentTransfer && errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Receipt{}, domain.ErrRecipientNotFound
		}

		return domain.Receipt{}, err
	}
	defer release()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	receipt := domain.Receipt{
		RequestID: in.RequestID,
		Kind:      in.Kind,
		Account:   in.Account,
		Amount:    in.Amount,
	}

	src := r.s.accounts[in.Account]

	switch in.Kind {
	case domain.IntentDeposit, domain.IntentWithdraw:
		txType, delta := domain.TypeDeposit, in.Amount
		if in.Kind == domain.IntentWithdraw {
			txType, delta = domain.TypeWithdraw, in.Amount.Neg()
		}

		before, after, err := r.s.shift(src, delta)
		if err != nil {
			return domain.Receipt{}, err
		}

		t := r.s.appendRecord(src, domain.RecordParams{
			AccountNumber: in.Account,
			Type:          txType,
			Amount:        in.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   in.Description,
		})

		receipt.Reference = t.Reference
		receipt.Transactions = []domain.Transaction{t}

	case domain.IntentTransfer:
		dst := r.s.accounts[in.Counterparty]

		before, after, err := r.s.shift(src, in.Amount.Neg())
		if err != nil {
			return domain.Receipt{}, err
		}

		dstBefore, dstAfter, err := r.s.shift(dst, in.Amount)
		if err != nil {
			src.data.Balance = before
			return domain.Receipt{}, err
		}

		correlation := r.s.refs.Transfer()

		out := r.s.appendRecord(src, domain.RecordParams{
			AccountNumber: in.Account,
			Type:          domain.TypeTransferOut,
			Amount:        in.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			CorrelationID: correlation,
			Counterparty:  in.Counterparty,
			Description:   domain.TransferOutDescription(in),
		})

		inLeg := r.s.appendRecord(dst, domain.RecordParams{
			AccountNumber: in.Counterparty,
			Type:          domain.TypeTransferIn,
			Amount:        in.Amount,
			BalanceBefore: dstBefore,
			BalanceAfter:  dstAfter,
			CorrelationID: correlation,
			Counterparty:  in.Account,
			Description:   domain.TransferInDescription(in),
		})

		receipt.Reference = correlation
		receipt.Counterparty = in.Counterparty
		receipt.Transactions = []domain.Transaction{out, inLeg}

	default:
		zerolog.Ctx(ctx).Error().Err(fmt.Errorf("unknown intent kind %q", in.Kind)).Send()
		return domain.Receipt{}, errorspkg.ErrInternal
	}

	receipt.NewBalance = src.data.Balance

	return receipt, nil
}

// PurgeIdempotency removes committed idempotency records created before the given time.
func (r *LedgerRepo) PurgeIdempotency(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64

	for k, e := range r.s.idem {
		if e.receipt != nil && e.createdAt.Before(before) {
			delete(r.s.idem, k)
			n++
		}
	}

	return n, nil
}
