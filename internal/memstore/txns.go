package memstore

import (
	"context"

	"github.com/go-petr/mini-bank/internal/domain"
)

// TxnRepo appends and reads transaction records in memory.
type TxnRepo struct {
	s *Store
}

// Record appends a transaction record and returns it.
func (r *TxnRepo) Record(ctx context.Context, arg domain.RecordParams) (domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[arg.AccountNumber]
	if !ok {
		return domain.Transaction{}, domain.ErrAccountNotFound
	}

	return r.s.appendRecord(a, arg), nil
}

// List returns a page of the account's records, newest first.
func (r *TxnRepo) List(ctx context.Context, arg domain.ListTransactionsParams) ([]domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := r.s.txns[arg.AccountNumber]
	items := []domain.Transaction{}
	skipped := int32(0)

	for i := len(all) - 1; i >= 0 && int32(len(items)) < arg.Limit; i-- {
		t := all[i]

		if arg.Cursor != 0 && t.ID >= arg.Cursor {
			continue
		}

		if skipped < arg.Offset {
			skipped++
			continue
		}

		items = append(items, t)
	}

	return items, nil
}
