// Package accountdelivery manages delivery layer of accounts.
package accountdelivery

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

// Service provides service layer interface needed by account delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package accountdelivery
type Service interface {
	Create(ctx context.Context, ownerID int64, accountType string) (domain.Account, error)
	List(ctx context.Context, ownerID int64) ([]domain.Account, error)
	Primary(ctx context.Context, ownerID int64) (domain.Account, error)
	Resolve(ctx context.Context, ownerID int64, number string) (domain.Account, error)
}

// Handler facilitates account delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns account handler.
func NewHandler(as Service) *Handler {
	return &Handler{service: as}
}

// AccountResponse is the JSON form of an account.
type AccountResponse struct {
	Number    string      `json:"account_number"`
	Type      string      `json:"account_type"`
	Balance   json.Number `json:"balance"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewAccountResponse renders the account with a two decimal balance.
func NewAccountResponse(a domain.Account) AccountResponse {
	return AccountResponse{
		Number:    a.Number,
		Type:      a.Type,
		Balance:   moneypkg.JSON(a.Balance),
		CreatedAt: a.CreatedAt,
	}
}

type createRequest struct {
	AccountType string `json:"account_type" binding:"omitempty,accounttype"`
}

type createResponse struct {
	web.Response
	Message string          `json:"message"`
	Account AccountResponse `json:"account"`
}

// Create handles http request to open an account for the caller.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req createRequest
	if gctx.Request.ContentLength != 0 {
		if err := gctx.ShouldBindJSON(&req); err != nil {
			middleware.RespondBindError(gctx, err)
			return
		}
	}

	p, _ := middleware.Principal(gctx)

	acc, err := h.service.Create(ctx, p.UserID, req.AccountType)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	zerolog.Ctx(ctx).Info().Str("account_number", acc.Number).Msg("account created")

	gctx.JSON(http.StatusOK, createResponse{
		Response: web.Response{Success: true},
		Message:  "Account created successfully",
		Account:  NewAccountResponse(acc),
	})
}

type infoResponse struct {
	web.Response
	HasAccount bool              `json:"has_account"`
	Account    *AccountResponse  `json:"account,omitempty"`
	Accounts   []AccountResponse `json:"accounts"`
}

// Info handles http request to describe the caller's accounts.
func (h *Handler) Info(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	p, _ := middleware.Principal(gctx)

	accounts, err := h.service.List(ctx, p.UserID)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	res := infoResponse{
		Response: web.Response{Success: true},
		Accounts: make([]AccountResponse, 0, len(accounts)),
	}

	for _, a := range accounts {
		res.Accounts = append(res.Accounts, NewAccountResponse(a))
	}

	if len(accounts) > 0 {
		primary, err := h.service.Primary(ctx, p.UserID)
		if err != nil {
			middleware.RespondError(gctx, err)
			return
		}

		acc := NewAccountResponse(primary)
		res.HasAccount = true
		res.Account = &acc
	}

	gctx.JSON(http.StatusOK, res)
}

type balanceRequest struct {
	AccountNumber string `form:"account_number" binding:"omitempty,accountnumber"`
}

type balanceResponse struct {
	web.Response
	Balance       json.Number `json:"balance"`
	AccountNumber string      `json:"account_number"`
}

// Balance handles http request to read the balance of the caller's account.
func (h *Handler) Balance(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req balanceRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		middleware.RespondBindError(gctx, err)
		return
	}

	p, _ := middleware.Principal(gctx)

	acc, err := h.service.Resolve(ctx, p.UserID, req.AccountNumber)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, balanceResponse{
		Response:      web.Response{Success: true},
		Balance:       moneypkg.JSON(acc.Balance),
		AccountNumber: acc.Number,
	})
}
