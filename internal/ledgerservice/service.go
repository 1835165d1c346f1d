// Package ledgerservice validates money movement intents, resolves the accounts
// they touch and hands them to the ledger for execution.
package ledgerservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/moneypkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// History page bounds.
const (
	DefaultLimit = 10
	MaxLimit     = 100
	// StatsWindow is the number of latest records the dashboard stats cover.
	StatsWindow = 10
)

// Repo executes intents atomically and at most once per request id.
//
//go:generate mockgen -source service.go -destination service_mock.go -package ledgerservice
type Repo interface {
	Execute(ctx context.Context, in domain.Intent) (domain.Receipt, error)
}

// HistoryRepo reads transaction records.
type HistoryRepo interface {
	List(ctx context.Context, arg domain.ListTransactionsParams) ([]domain.Transaction, error)
}

// AccountService resolves accounts for the caller.
type AccountService interface {
	Resolve(ctx context.Context, ownerID int64, number string) (domain.Account, error)
	Get(ctx context.Context, number string) (domain.Account, error)
}

// Notifier delivers receipts of committed intents.
type Notifier interface {
	Receipt(ctx context.Context, to domain.Principal, r domain.Receipt) error
}

// Service facilitates money movement logic.
type Service struct {
	repo       Repo
	history    HistoryRepo
	accounts   AccountService
	notifier   Notifier
	maxDeposit decimal.Decimal
	wg         sync.WaitGroup
}

// New returns ledger service. A nil notifier disables receipts.
func New(repo Repo, history HistoryRepo, accounts AccountService, notifier Notifier, maxDeposit decimal.Decimal) *Service {
	return &Service{
		repo:       repo,
		history:    history,
		accounts:   accounts,
		notifier:   notifier,
		maxDeposit: maxDeposit,
	}
}

// Deposit credits the caller's account.
func (s *Service) Deposit(ctx context.Context, p domain.Principal, arg domain.MoveParams) (domain.Receipt, error) {
	in, err := s.intent(ctx, p, domain.IntentDeposit, arg)
	if err != nil {
		return domain.Receipt{}, err
	}

	if s.maxDeposit.IsPositive() && in.Amount.GreaterThan(s.maxDeposit) {
		return domain.Receipt{}, &domain.ValidationError{
			Msg: "Maximum deposit amount is " + moneypkg.String(s.maxDeposit),
		}
	}

	if in.Description == "" {
		in.Description = "Deposit"
	}

	return s.execute(ctx, p, in)
}

// Withdraw debits the caller's account.
func (s *Service) Withdraw(ctx context.Context, p domain.Principal, arg domain.MoveParams) (domain.Receipt, error) {
	in, err := s.intent(ctx, p, domain.IntentWithdraw, arg)
	if err != nil {
		return domain.Receipt{}, err
	}

	if in.Description == "" {
		in.Description = "Withdrawal"
	}

	return s.execute(ctx, p, in)
}

// Transfer moves money from the caller's account to any other account.
func (s *Service) Transfer(ctx context.Context, p domain.Principal, arg domain.MoveParams) (domain.Receipt, error) {
	to := strings.TrimSpace(arg.Counterparty)

	switch {
	case to == "":
		return domain.Receipt{}, domain.ErrRecipientRequired
	case !domain.IsAccountNumber(to):
		return domain.Receipt{}, domain.ErrInvalidAccountNumber
	}

	arg.Counterparty = to

	in, err := s.intent(ctx, p, domain.IntentTransfer, arg)
	if err != nil {
		return domain.Receipt{}, err
	}

	if in.Account == in.Counterparty {
		return domain.Receipt{}, domain.ErrSameAccount
	}

	if _, err := s.accounts.Get(ctx, to); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Receipt{}, domain.ErrRecipientNotFound
		}

		return domain.Receipt{}, err
	}

	return s.execute(ctx, p, in)
}

// intent validates the common fields and resolves the source account.
func (s *Service) intent(ctx context.Context, p domain.Principal, kind string, arg domain.MoveParams) (domain.Intent, error) {
	amount, err := ParseAmount(arg.Amount)
	if err != nil {
		return domain.Intent{}, err
	}

	description := strings.TrimSpace(arg.Description)
	if len([]rune(description)) > domain.MaxDescriptionLength {
		return domain.Intent{}, domain.ErrDescriptionTooLong
	}

	requestID := strings.TrimSpace(arg.RequestID)
	if len(requestID) > domain.MaxRequestIDLength {
		return domain.Intent{}, domain.ErrInvalidRequestID
	}

	if requestID == "" {
		requestID = uuid.NewString()
	}

	acc, err := s.accounts.Resolve(ctx, p.UserID, strings.TrimSpace(arg.Account))
	if err != nil {
		return domain.Intent{}, err
	}

	return domain.Intent{
		OwnerID:      p.UserID,
		RequestID:    requestID,
		Kind:         kind,
		Account:      acc.Number,
		Counterparty: arg.Counterparty,
		Amount:       amount,
		Description:  description,
	}, nil
}

func (s *Service) execute(ctx context.Context, p domain.Principal, in domain.Intent) (domain.Receipt, error) {
	l := zerolog.Ctx(ctx)

	receipt, err := s.repo.Execute(ctx, in)
	if err != nil {
		l.Info().Err(err).
			Str("request_id", in.RequestID).
			Str("kind", in.Kind).
			Str("account_number", in.Account).
			Msg("intent rejected")

		return domain.Receipt{}, err
	}

	l.Info().
		Str("request_id", in.RequestID).
		Str("kind", in.Kind).
		Str("reference", receipt.Reference).
		Bool("replayed", receipt.Replayed).
		Msg("intent committed")

	if !receipt.Replayed {
		s.notify(ctx, p, receipt)
	}

	return receipt, nil
}

// notify sends the receipt in the background with a context that outlives the request.
func (s *Service) notify(ctx context.Context, p domain.Principal, r domain.Receipt) {
	if s.notifier == nil {
		return
	}

	nctx := zerolog.Ctx(ctx).WithContext(context.Background())

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if err := s.notifier.Receipt(nctx, p, r); err != nil {
			zerolog.Ctx(nctx).Warn().Err(err).Str("reference", r.Reference).Msg("receipt not delivered")
		}
	}()
}

// Wait blocks until every pending receipt has been handed to the notifier.
func (s *Service) Wait() {
	s.wg.Wait()
}

// History returns a page of the account's records, newest first.
func (s *Service) History(ctx context.Context, p domain.Principal, number string, limit, offset int32, cursor int64) (domain.HistoryPage, error) {
	acc, err := s.accounts.Resolve(ctx, p.UserID, number)
	if err != nil {
		return domain.HistoryPage{}, err
	}

	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	if offset < 0 {
		offset = 0
	}

	txs, err := s.history.List(ctx, domain.ListTransactionsParams{
		AccountNumber: acc.Number,
		Limit:         limit,
		Offset:        offset,
		Cursor:        cursor,
	})
	if err != nil {
		return domain.HistoryPage{}, err
	}

	page := domain.HistoryPage{Account: acc, Transactions: txs}
	if len(txs) == int(limit) {
		page.NextCursor = txs[len(txs)-1].ID
	}

	return page, nil
}

// Stats summarizes the latest records of the account.
func (s *Service) Stats(ctx context.Context, p domain.Principal, number string) (domain.Account, domain.Stats, error) {
	acc, err := s.accounts.Resolve(ctx, p.UserID, number)
	if err != nil {
		return domain.Account{}, domain.Stats{}, err
	}

	txs, err := s.history.List(ctx, domain.ListTransactionsParams{
		AccountNumber: acc.Number,
		Limit:         StatsWindow,
	})
	if err != nil {
		return domain.Account{}, domain.Stats{}, err
	}

	return acc, domain.NewStats(acc.Balance, txs), nil
}

// ParseAmount parses a positive amount with at most two decimal places.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := moneypkg.Parse(s)

	switch {
	case errors.Is(err, moneypkg.ErrInvalidAmount):
		return decimal.Zero, &domain.ValidationError{Msg: "Invalid amount"}
	case errors.Is(err, moneypkg.ErrTooPrecise):
		return decimal.Zero, &domain.ValidationError{Msg: "Amount must have at most 2 decimal places"}
	case errors.Is(err, moneypkg.ErrTooLarge):
		return decimal.Zero, &domain.ValidationError{Msg: "Amount is too large"}
	case err != nil:
		return decimal.Zero, fmt.Errorf("parse amount: %w", err)
	}

	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrNonPositiveAmount
	}

	return amount, nil
}
