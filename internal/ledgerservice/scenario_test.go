package ledgerservice_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-petr/mini-bank/internal/accountservice"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/internal/ledgerservice"
	"github.com/go-petr/mini-bank/internal/memstore"
	"github.com/go-petr/mini-bank/pkg/randompkg"
	"github.com/go-petr/mini-bank/pkg/refpkg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	refs, err := refpkg.New(1)
	require.NoError(t, err)

	store := memstore.New(refs, time.Second)
	accounts := accountservice.New(store.Accounts())
	s := ledgerservice.New(store.Ledger(), store.Transactions(), accounts, nil, decimal.New(1, 6))

	newOwner := func() (domain.Principal, domain.Account) {
		u, err := store.Users().Create(ctx, domain.CreateUserParams{
			Name:  randompkg.Name(),
			Email: randompkg.Email(),
			Phone: randompkg.Phone(),
		})
		require.NoError(t, err)

		a, err := accounts.Create(ctx, u.ID, "")
		require.NoError(t, err)

		return domain.Principal{UserID: u.ID, Email: u.Email, Name: u.Name}, a
	}

	alice, aliceAcc := newOwner()
	_, bobAcc := newOwner()

	_, err = s.Deposit(ctx, alice, domain.MoveParams{Amount: "1000.00"})
	require.NoError(t, err)

	dep, err := s.Deposit(ctx, alice, domain.MoveParams{RequestID: "dep-1", Amount: "500.00"})
	require.NoError(t, err)
	require.Equal(t, "1500.00", dep.NewBalance.StringFixed(2))

	replay, err := s.Deposit(ctx, alice, domain.MoveParams{RequestID: "dep-1", Amount: "500.00"})
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Equal(t, dep.Reference, replay.Reference)

	_, err = s.Deposit(ctx, alice, domain.MoveParams{RequestID: "dep-1", Amount: "501.00"})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyReuse)

	_, err = s.Withdraw(ctx, alice, domain.MoveParams{Amount: "2000.00"})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	trf, err := s.Transfer(ctx, alice, domain.MoveParams{Counterparty: bobAcc.Number, Amount: "1500.00"})
	require.NoError(t, err)
	require.Equal(t, "0.00", trf.NewBalance.StringFixed(2))
	require.Len(t, trf.Transactions, 2)
	require.Equal(t, trf.Transactions[0].CorrelationID, trf.Transactions[1].CorrelationID)

	page, err := s.History(ctx, alice, aliceAcc.Number, 2, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	require.Equal(t, domain.TypeTransferOut, page.Transactions[0].Type)
	require.NotZero(t, page.NextCursor)

	rest, err := s.History(ctx, alice, aliceAcc.Number, 10, 0, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, rest.Transactions, 1)
	require.Zero(t, rest.NextCursor)

	_, stats, err := s.Stats(ctx, alice, "")
	require.NoError(t, err)
	require.Equal(t, "1500.00", stats.TotalDeposits.StringFixed(2))
	require.Equal(t, "1500.00", stats.TotalTransfersOut.StringFixed(2))
	require.True(t, stats.Balance.IsZero())
}
