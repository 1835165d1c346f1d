package memstore

import (
	"context"
	"sort"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountRepo stores accounts in memory.
type AccountRepo struct {
	s *Store
}

// Create creates the account with zero balance and then returns it.
func (r *AccountRepo) Create(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	if !domain.IsAccountType(arg.Type) {
		return domain.Account{}, domain.ErrInvalidAccountType
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[arg.OwnerID]; !ok {
		return domain.Account{}, domain.ErrOwnerNotFound
	}

	if _, ok := r.s.accounts[arg.Number]; ok {
		return domain.Account{}, domain.ErrAccountNumberTaken
	}

	for _, a := range r.s.accounts {
		if a.data.OwnerID == arg.OwnerID && a.data.Type == arg.Type {
			return domain.Account{}, domain.ErrAccountAlreadyExists
		}
	}

	a := &account{
		lock: make(chan struct{}, 1),
		data: domain.Account{
			Number:    arg.Number,
			OwnerID:   arg.OwnerID,
			Type:      arg.Type,
			Balance:   decimal.Zero,
			CreatedAt: r.s.now().UTC(),
		},
	}

	r.s.accounts[arg.Number] = a

	return a.data, nil
}

// Get returns the account with the given number.
func (r *AccountRepo) Get(ctx context.Context, number string) (domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.accounts[number]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a.data, nil
}

// List returns all accounts of the owner, oldest first.
func (r *AccountRepo) List(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := []domain.Account{}

	for _, a := range r.s.accounts {
		if a.data.OwnerID == ownerID {
			items = append(items, a.data)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].Number < items[j].Number
		}

		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return items, nil
}

// GetBalance returns the committed balance of the account.
func (r *AccountRepo) GetBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	a, err := r.Get(ctx, number)
	if err != nil {
		return decimal.Zero, err
	}

	return a.Balance, nil
}

// ApplyDelta adds the signed delta to the balance under the account lock and
// returns the new balance. A negative result fails with domain.ErrInsufficientFunds
// and one at moneypkg.Max or above with domain.ErrBalanceLimit.
func (r *AccountRepo) ApplyDelta(ctx context.Context, number string, delta decimal.Decimal) (decimal.Decimal, error) {
	release, err := r.s.acquire(ctx, number)
	if err != nil {
		return decimal.Zero, err
	}
	defer release()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, after, err := r.s.shift(r.s.accounts[number], delta)
	if err != nil {
		return decimal.Zero, err
	}

	return after, nil
}
