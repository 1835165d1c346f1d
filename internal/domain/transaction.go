package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeDeposit     = "deposit"
	TypeWithdraw    = "withdraw"
	TypeTransferIn  = "transfer_in"
	TypeTransferOut = "transfer_out"
)

// Intent kinds.
const (
	IntentDeposit  = "deposit"
	IntentWithdraw = "withdraw"
	IntentTransfer = "transfer"
)

// MaxDescriptionLength is the maximum length of a transaction description.
const MaxDescriptionLength = 255

// MaxRequestIDLength is the maximum length of a client supplied request id.
const MaxRequestIDLength = 64

// Transaction is an immutable ledger record of a single balance change.
type Transaction struct {
	ID            int64           `json:"id"`
	Reference     string          `json:"reference"`
	AccountNumber string          `json:"account_number"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Counterparty  string          `json:"counterparty,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RecordParams is the input data to append a transaction record.
//
// An empty Reference is issued by the recorder.
type RecordParams struct {
	Reference     string
	AccountNumber string
	Type          string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	CorrelationID string
	Counterparty  string
	Description   string
}

// ListTransactionsParams selects a page of an account's history.
//
// Records are returned newest first. A non-zero Cursor returns records older than it.
type ListTransactionsParams struct {
	AccountNumber string
	Limit         int32
	Offset        int32
	Cursor        int64
}

// Intent is a money movement requested by an authenticated owner.
type Intent struct {
	OwnerID      int64
	RequestID    string
	Kind         string
	Account      string
	Counterparty string
	Amount       decimal.Decimal
	Description  string
}

// Fingerprint identifies the intent's effect. Two intents with the same request id
// must have the same fingerprint.
func (i Intent) Fingerprint() string {
	return strings.Join([]string{i.Kind, i.Account, i.Counterparty, i.Amount.StringFixed(2)}, "|")
}

// Receipt is the committed result of an intent. It is stored with the request id
// and returned again on replay.
type Receipt struct {
	RequestID    string          `json:"request_id"`
	Kind         string          `json:"kind"`
	Reference    string          `json:"reference"`
	Account      string          `json:"account_number"`
	Counterparty string          `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	Transactions []Transaction   `json:"transactions"`
	Replayed     bool            `json:"-"`
}

// Stats summarizes the most recent records of an account.
type Stats struct {
	Balance           decimal.Decimal
	TotalDeposits     decimal.Decimal
	TotalWithdrawals  decimal.Decimal
	TotalTransfersOut decimal.Decimal
	TotalTransfersIn  decimal.Decimal
	TransactionCount  int
	Recent            []Transaction
}

// NewStats sums txs per type.
func NewStats(balance decimal.Decimal, txs []Transaction) Stats {
	s := Stats{
		Balance:          balance,
		TransactionCount: len(txs),
		Recent:           txs,
	}

	for _, t := range txs {
		switch t.Type {
		case TypeDeposit:
			s.TotalDeposits = s.TotalDeposits.Add(t.Amount)
		case TypeWithdraw:
			s.TotalWithdrawals = s.TotalWithdrawals.Add(t.Amount)
		case TypeTransferOut:
			s.TotalTransfersOut = s.TotalTransfersOut.Add(t.Amount)
		case TypeTransferIn:
			s.TotalTransfersIn = s.TotalTransfersIn.Add(t.Amount)
		}
	}

	return s
}

// InsufficientFunds returns ErrInsufficientFunds annotated with the available balance.
func InsufficientFunds(available decimal.Decimal) error {
	return fmt.Errorf("%w. Available: %s", ErrInsufficientFunds, available.StringFixed(2))
}

// TransferOutDescription returns the description of the debit leg.
func TransferOutDescription(in Intent) string {
	if in.Description != "" {
		return in.Description
	}

	return "Transfer to " + in.Counterparty
}

// TransferInDescription returns the description of the credit leg.
func TransferInDescription(in Intent) string {
	if in.Description != "" {
		return in.Description
	}

	return "Transfer from " + in.Account
}

// MoveParams is the raw client input of a money movement.
//
// An empty Account selects the caller's primary account. Counterparty is the
// destination of a transfer.
type MoveParams struct {
	RequestID    string
	Account      string
	Counterparty string
	Amount       string
	Description  string
}

// HistoryPage is a page of an account's history, newest first.
//
// NextCursor is zero on the last page.
type HistoryPage struct {
	Account      Account
	Transactions []Transaction
	NextCursor   int64
}
