// Package ledgerdelivery manages delivery layer of money movements and history.
package ledgerdelivery

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/internal/middleware"
	"github.com/go-petr/mini-bank/pkg/moneypkg"
	"github.com/go-petr/mini-bank/pkg/web"
	"github.com/rs/zerolog"
)

// DateLayout is the layout of the human readable date of a transaction.
const DateLayout = "2006-01-02 15:04:05"

// Service provides service layer interface needed by ledger delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type Service interface {
	Deposit(ctx context.Context, p domain.Principal, arg domain.MoveParams) (domain.Receipt, error)
	Withdraw(ctx context.Context, p domain.Principal, arg domain.MoveParams) (domain.Receipt, error)
	Transfer(ctx context.Context, p domain.Principal, arg domain.MoveParams) (domain.Receipt, error)
	History(ctx context.Context, p domain.Principal, number string, limit, offset int32, cursor int64) (domain.HistoryPage, error)
	Stats(ctx context.Context, p domain.Principal, number string) (domain.Account, domain.Stats, error)
}

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns ledger handler.
func NewHandler(ls Service) *Handler {
	return &Handler{service: ls}
}

// TransactionResponse is the JSON form of a transaction record.
type TransactionResponse struct {
	Reference     string      `json:"reference"`
	AccountNumber string      `json:"account_number"`
	Type          string      `json:"type"`
	Amount        json.Number `json:"amount"`
	BalanceBefore json.Number `json:"balance_before"`
	BalanceAfter  json.Number `json:"balance_after"`
	CorrelationID string      `json:"correlation_id"`
	Counterparty  string      `json:"counterparty"`
	Description   string      `json:"description"`
	Timestamp     time.Time   `json:"timestamp"`
	Date          string      `json:"date"`
}

// NewTransactionResponse renders t with two decimal amounts.
func NewTransactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		Reference:     t.Reference,
		AccountNumber: t.AccountNumber,
		Type:          t.Type,
		Amount:        moneypkg.JSON(t.Amount),
		BalanceBefore: moneypkg.JSON(t.BalanceBefore),
		BalanceAfter:  moneypkg.JSON(t.BalanceAfter),
		CorrelationID: t.CorrelationID,
		Counterparty:  t.Counterparty,
		Description:   t.Description,
		Timestamp:     t.CreatedAt,
		Date:          t.CreatedAt.Format(DateLayout),
	}
}

func newTransactionsResponse(txs []domain.Transaction) []TransactionResponse {
	res := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		res = append(res, NewTransactionResponse(t))
	}

	return res
}

type moveRequest struct {
	Amount        json.Number `json:"amount" binding:"required"`
	Description   string      `json:"description"`
	AccountNumber string      `json:"account_number" binding:"omitempty,accountnumber"`
	RequestID     string      `json:"request_id"`
}

type moveResponse struct {
	web.Response
	Message     string              `json:"message"`
	NewBalance  json.Number         `json:"new_balance"`
	Reference   string              `json:"reference"`
	RequestID   string              `json:"request_id"`
	Transaction TransactionResponse `json:"transaction"`
}

// requestID prefers the body field over the Idempotency-Key header.
func requestID(gctx *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}

	return gctx.GetHeader(middleware.IdempotencyKeyHeader)
}

type moveFunc func(ctx context.Context, p domain.Principal, arg domain.MoveParams) (domain.Receipt, error)

func (h *Handler) move(gctx *gin.Context, do moveFunc, verb string) {
	ctx := gctx.Request.Context()

	var req moveRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(gctx, err)
		return
	}

	p, _ := middleware.Principal(gctx)

	receipt, err := do(ctx, p, domain.MoveParams{
		RequestID:   requestID(gctx, req.RequestID),
		Account:     req.AccountNumber,
		Amount:      req.Amount.String(),
		Description: req.Description,
	})
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	if receipt.Replayed {
		gctx.Header(middleware.ReplayedHeader, "true")
	}

	res := moveResponse{
		Response:   web.Response{Success: true},
		Message:    "Successfully " + verb + " Rs." + moneypkg.String(receipt.Amount),
		NewBalance: moneypkg.JSON(receipt.NewBalance),
		Reference:  receipt.Reference,
		RequestID:  receipt.RequestID,
	}

	if len(receipt.Transactions) > 0 {
		res.Transaction = NewTransactionResponse(receipt.Transactions[0])
	}

	gctx.JSON(http.StatusOK, res)
}

// Deposit handles http request to credit the caller's account.
func (h *Handler) Deposit(gctx *gin.Context) {
	h.move(gctx, h.service.Deposit, "deposited")
}

// Withdraw handles http request to debit the caller's account.
func (h *Handler) Withdraw(gctx *gin.Context) {
	h.move(gctx, h.service.Withdraw, "withdrew")
}

type transferRequest struct {
	ToAccount   string      `json:"to_account" binding:"required,accountnumber"`
	FromAccount string      `json:"from_account" binding:"omitempty,accountnumber"`
	Amount      json.Number `json:"amount" binding:"required"`
	Description string      `json:"description"`
	RequestID   string      `json:"request_id"`
}

type transferResponse struct {
	web.Response
	Message      string                `json:"message"`
	NewBalance   json.Number           `json:"new_balance"`
	Reference    string                `json:"reference"`
	RequestID    string                `json:"request_id"`
	ToAccount    string                `json:"to_account"`
	Transactions []TransactionResponse `json:"transactions"`
}

// Transfer handles http request to move money to another account.
func (h *Handler) Transfer(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req transferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(gctx, err)
		return
	}

	p, _ := middleware.Principal(gctx)

	receipt, err := h.service.Transfer(ctx, p, domain.MoveParams{
		RequestID:    requestID(gctx, req.RequestID),
		Account:      req.FromAccount,
		Counterparty: req.ToAccount,
		Amount:       req.Amount.String(),
		Description:  req.Description,
	})
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	if receipt.Replayed {
		gctx.Header(middleware.ReplayedHeader, "true")
	}

	zerolog.Ctx(ctx).Info().
		Str("reference", receipt.Reference).
		Str("to_account", receipt.Counterparty).
		Msg("transfer committed")

	gctx.JSON(http.StatusOK, transferResponse{
		Response:     web.Response{Success: true},
		Message:      "Successfully transferred Rs." + moneypkg.String(receipt.Amount) + " to " + receipt.Counterparty,
		NewBalance:   moneypkg.JSON(receipt.NewBalance),
		Reference:    receipt.Reference,
		RequestID:    receipt.RequestID,
		ToAccount:    receipt.Counterparty,
		Transactions: newTransactionsResponse(receipt.Transactions),
	})
}

type historyRequest struct {
	AccountNumber string `form:"account_number" binding:"omitempty,accountnumber"`
	Limit         int32  `form:"limit" binding:"min=0"`
	Offset        int32  `form:"offset" binding:"min=0"`
	Cursor        int64  `form:"cursor" binding:"min=0"`
}

type historyResponse struct {
	web.Response
	AccountNumber string                `json:"account_number"`
	Transactions  []TransactionResponse `json:"transactions"`
	NextCursor    int64                 `json:"next_cursor,omitempty"`
	Count         int                   `json:"count"`
}

// History handles http request to list the account's records, newest first.
func (h *Handler) History(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req historyRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		middleware.RespondBindError(gctx, err)
		return
	}

	p, _ := middleware.Principal(gctx)

	page, err := h.service.History(ctx, p, req.AccountNumber, req.Limit, req.Offset, req.Cursor)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, historyResponse{
		Response:      web.Response{Success: true},
		AccountNumber: page.Account.Number,
		Transactions:  newTransactionsResponse(page.Transactions),
		NextCursor:    page.NextCursor,
		Count:         len(page.Transactions),
	})
}

type statsRequest struct {
	AccountNumber string `form:"account_number" binding:"omitempty,accountnumber"`
}

type statsBody struct {
	Balance           json.Number `json:"balance"`
	TotalDeposits     json.Number `json:"total_deposits"`
	TotalWithdrawals  json.Number `json:"total_withdrawals"`
	TotalTransfersOut json.Number `json:"total_transfers_out"`
	TotalTransfersIn  json.Number `json:"total_transfers_in"`
	TransactionCount  int         `json:"transaction_count"`
}

type statsResponse struct {
	web.Response
	AccountNumber      string                `json:"account_number"`
	Stats              statsBody             `json:"stats"`
	RecentTransactions []TransactionResponse `json:"recent_transactions"`
}

// Stats handles http request to summarize the account's latest records.
func (h *Handler) Stats(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req statsRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		middleware.RespondBindError(gctx, err)
		return
	}

	p, _ := middleware.Principal(gctx)

	acc, stats, err := h.service.Stats(ctx, p, req.AccountNumber)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, statsResponse{
		Response:      web.Response{Success: true},
		AccountNumber: acc.Number,
		Stats: statsBody{
			Balance:           moneypkg.JSON(stats.Balance),
			TotalDeposits:     moneypkg.JSON(stats.TotalDeposits),
			TotalWithdrawals:  moneypkg.JSON(stats.TotalWithdrawals),
			TotalTransfersOut: moneypkg.JSON(stats.TotalTransfersOut),
			TotalTransfersIn:  moneypkg.JSON(stats.TotalTransfersIn),
			TransactionCount:  stats.TransactionCount,
		},
		RecentTransactions: newTransactionsResponse(stats.Recent),
	})
}
