// Package memstore is an in-memory backend for every repository of the service.
//
// Each account has its own single-writer lock. Money movements take the locks of
// the accounts they touch in ascending account number order, with a timeout, and
// publish all their effects under the store mutex at once, so readers never see a
// half-applied transfer.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/moneypkg"
	"github.com/go-petr/mini-bank/pkg/refpkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type account struct {
	// lock is a 1-slot semaphore so acquisition can time out.
	lock   chan struct{}
	data   domain.Account
	lastAt time.Time
}

type idemKey struct {
	owner     int64
	requestID string
}

type idemEntry struct {
	fingerprint string
	receipt     *domain.Receipt
	createdAt   time.Time
}

// Store keeps users, sessions, accounts, transaction records and idempotency
// records in memory.
type Store struct {
	refs        *refpkg.Generator
	lockTimeout time.Duration
	now         func() time.Time

	mu         sync.RWMutex
	users      map[int64]domain.User
	emails     map[string]int64
	nextUserID int64
	sessions   map[uuid.UUID]domain.Session
	accounts   map[string]*account
	txns       map[string][]domain.Transaction
	nextTxnID  int64
	idem       map[idemKey]*idemEntry
}

// New returns an empty Store. Lock acquisition fails with domain.ErrBusy after
// lockTimeout.
func New(refs *refpkg.Generator, lockTimeout time.Duration) *Store {
	return &Store{
		refs:        refs,
		lockTimeout: lockTimeout,
		now:         time.Now,
		users:       map[int64]domain.User{},
		emails:      map[string]int64{},
		sessions:    map[uuid.UUID]domain.Session{},
		accounts:    map[string]*account{},
		txns:        map[string][]domain.Transaction{},
		idem:        map[idemKey]*idemEntry{},
	}
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Sessions returns the session repository view of the store.
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s: s} }

// Accounts returns the account repository view of the store.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Transactions returns the transaction recorder view of the store.
func (s *Store) Transactions() *TxnRepo { return &TxnRepo{s: s} }

// Ledger returns the intent executor view of the store.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s: s} }

// acquire takes the locks of the given accounts in ascending order. All locks are
// taken within one lockTimeout, otherwise the taken ones are released and
// domain.ErrBusy is returned.
func (s *Store) acquire(ctx context.Context, numbers ...string) (func(), error) {
	sorted := append([]string(nil), numbers...)
	sort.Strings(sorted)

	s.mu.RLock()
	accs := make([]*account, 0, len(sorted))

	for i, n := range sorted {
		if i > 0 && sorted[i-1] == n {
			continue
		}

		a, ok := s.accounts[n]
		if !ok {
			s.mu.RUnlock()
			return nil, domain.ErrAccountNotFound
		}

		accs = append(accs, a)
	}
	s.mu.RUnlock()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	release := func(held []*account) {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].lock
		}
	}

	for i, a := range accs {
		select {
		case a.lock <- struct{}{}:
		case <-timer.C:
			release(accs[:i])
			zerolog.Ctx(ctx).Warn().Str("account_number", a.data.Number).Msg("lock timeout")

			return nil, domain.ErrBusy
		case <-ctx.Done():
			release(accs[:i])
			return nil, domain.ErrBusy
		}
	}

	return func() { release(accs) }, nil
}

// stamp returns a creation time strictly after the account's previous record.
// The caller holds s.mu.
func (s *Store) stamp(a *account) time.Time {
	at := s.now().UTC()
	if !at.After(a.lastAt) {
		at = a.lastAt.Add(time.Microsecond)
	}

	a.lastAt = at

	return at
}

// shift adds delta to the balance of a and returns the balances around it. The
// balance stays in [0, moneypkg.Max), otherwise nothing changes. The caller holds
// s.mu and the account lock.
func (s *Store) shift(a *account, delta decimal.Decimal) (before, after decimal.Decimal, err error) {
	before = a.data.Balance
	after = before.Add(delta)

	switch {
	case after.IsNegative():
		return before, before, domain.InsufficientFunds(before)
	case after.GreaterThanOrEqual(moneypkg.Max):
		return before, before, domain.ErrBalanceLimit
	}

	a.data.Balance = after

	return before, after, nil
}

// appendRecord stores a record with the next id. The caller holds s.mu.
func (s *Store) appendRecord(a *account, arg domain.RecordParams) domain.Transaction {
	if arg.Reference == "" {
		arg.Reference = s.refs.Transaction()
	}

	s.nextTxnID++

	t := domain.Transaction{
		ID:            s.nextTxnID,
		Reference:     arg.Reference,
		AccountNumber: arg.AccountNumber,
		Type:          arg.Type,
		Amount:        arg.Amount,
		BalanceBefore: arg.BalanceBefore,
		BalanceAfter:  arg.BalanceAfter,
		CorrelationID: arg.CorrelationID,
		Counterparty:  arg.Counterparty,
		Description:   arg.Description,
		CreatedAt:     s.stamp(a),
	}

	s.txns[arg.AccountNumber] = append(s.txns[arg.AccountNumber], t)

	return t
}
