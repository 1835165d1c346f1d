// Package accountservice manages business logic layer of accounts.
package accountservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/go-petr/mini-bank/pkg/randompkg"
	"github.com/rs/zerolog"
)

// createAttempts bounds the retries on account number collisions.
const createAttempts = 5

// Repo provides data access layer interface needed by account service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package accountservice
type Repo interface {
	Create(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error)
	Get(ctx context.Context, number string) (domain.Account, error)
	List(ctx context.Context, ownerID int64) ([]domain.Account, error)
}

// Service facilitates account service layer logic.
type Service struct {
	repo Repo
	now  func() time.Time
}

// New returns account service struct to manage account bussines logic.
func New(ar Repo) *Service {
	return &Service{
		repo: ar,
		now:  time.Now,
	}
}

// GenerateNumber returns 1001, the last 5 digits of the unix time and 4 random digits.
func GenerateNumber(now time.Time) string {
	return fmt.Sprintf("%s%05d%s", domain.AccountNumberPrefix, now.Unix()%100000, randompkg.Digits(4))
}

// Create creates an account of the given type for the owner. An empty type means savings.
func (s *Service) Create(ctx context.Context, ownerID int64, accountType string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	if accountType == "" {
		accountType = domain.AccountTypeSavings
	}

	if !domain.IsAccountType(accountType) {
		return domain.Account{}, domain.ErrInvalidAccountType
	}

	for i := 0; i < createAttempts; i++ {
		arg := domain.CreateAccountParams{
			Number:  GenerateNumber(s.now()),
			OwnerID: ownerID,
			Type:    accountType,
		}

		acc, err := s.repo.Create(ctx, arg)
		if errors.Is(err, domain.ErrAccountNumberTaken) {
			l.Warn().Str("account_number", arg.Number).Msg("account number collision")
			continue
		}

		return acc, err
	}

	l.Error().Int64("owner_id", ownerID).Msg("no free account number")

	return domain.Account{}, errorspkg.ErrInternal
}

// Get returns the account with the given number regardless of its owner.
func (s *Service) Get(ctx context.Context, number string) (domain.Account, error) {
	return s.repo.Get(ctx, number)
}

// List returns all accounts of the owner.
func (s *Service) List(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	return s.repo.List(ctx, ownerID)
}

// Primary returns the savings account of the owner, or the oldest account when
// there is no savings account.
func (s *Service) Primary(ctx context.Context, ownerID int64) (domain.Account, error) {
	accounts, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return domain.Account{}, err
	}

	if len(accounts) == 0 {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	for _, a := range accounts {
		if a.Type == domain.AccountTypeSavings {
			return a, nil
		}
	}

	return accounts[0], nil
}

// Resolve returns the owner's account with the given number, or the primary
// account when number is empty.
func (s *Service) Resolve(ctx context.Context, ownerID int64, number string) (domain.Account, error) {
	if number == "" {
		return s.Primary(ctx, ownerID)
	}

	if !domain.IsAccountNumber(number) {
		return domain.Account{}, domain.ErrInvalidAccountNumber
	}

	acc, err := s.repo.Get(ctx, number)
	if err != nil {
		return domain.Account{}, err
	}

	if acc.OwnerID != ownerID {
		zerolog.Ctx(ctx).Warn().
			Int64("owner_id", ownerID).
			Str("account_number", number).
			Msg("account owner mismatch")

		return domain.Account{}, domain.ErrForbidden
	}

	return acc, nil
}
