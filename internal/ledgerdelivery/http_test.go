package ledgerdelivery

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/internal/accountdelivery"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/internal/middleware"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	fromNumber = "1001000000001"
	toNumber   = "1001000000002"
)

var (
	principal = domain.Principal{UserID: 7, Email: "john@email.com", Name: "John"}
	createdAt = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.ReleaseMode)

	if err := accountdelivery.RegisterValidators(); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func newServer(t *testing.T, ctrl *gomock.Controller, service Service) *gin.Engine {
	t.Helper()

	auth := middleware.NewMockAuthenticator(ctrl)
	auth.EXPECT().Authenticate(gomock.Any(), "token").AnyTimes().Return(principal, nil)

	h := NewHandler(service)

	server := gin.New()
	txs := server.Group("/api/transactions", middleware.AuthMiddleware(auth))
	txs.POST("/deposit", h.Deposit)
	txs.POST("/withdraw", h.Withdraw)
	txs.POST("/transfer", h.Transfer)
	txs.GET("/history", h.History)
	txs.GET("/export", h.Export)
	server.GET("/api/dashboard/stats", middleware.AuthMiddleware(auth), h.Stats)

	return server
}

func doRequest(server *gin.Engine, method, url string, body any, header http.Header) *httptest.ResponseRecorder {
	var request *http.Request

	if body != nil {
		data, _ := json.Marshal(body)
		request = httptest.NewRequest(method, url, bytes.NewReader(data))
	} else {
		request = httptest.NewRequest(method, url, nil)
	}

	for k, v := range header {
		request.Header[k] = v
	}

	middleware.AddAuthorization(request, middleware.AuthTypeBearer, "token")

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	return recorder
}

func record(id int64, account, typ, amount, before, after string) domain.Transaction {
	return domain.Transaction{
		ID:            id,
		Reference:     "TXN" + account[9:] + typ[:1],
		AccountNumber: account,
		Type:          typ,
		Amount:        decimal.RequireFromString(amount),
		BalanceBefore: decimal.RequireFromString(before),
		BalanceAfter:  decimal.RequireFromString(after),
		Description:   "Deposit",
		CreatedAt:     createdAt,
	}
}

func receipt(kind, amount, balance string, txs ...domain.Transaction) domain.Receipt {
	return domain.Receipt{
		RequestID:    "req-1",
		Kind:         kind,
		Reference:    txs[0].Reference,
		Account:      fromNumber,
		Amount:       decimal.RequireFromString(amount),
		NewBalance:   decimal.RequireFromString(balance),
		Transactions: txs,
	}
}

func TestDepositAPI(t *testing.T) {
	t.Parallel()

	deposit := record(1, fromNumber, domain.TypeDeposit, "500", "1000", "1500")

	testCases := []struct {
		name         string
		body         any
		header       http.Header
		buildStubs   func(service *MockService)
		wantStatus   int
		wantError    string
		wantReplayed bool
	}{
		{
			name: "OK",
			body: gin.H{"amount": 500, "request_id": "req-1"},
			buildStubs: func(service *MockService) {
				service.EXPECT().
					Deposit(gomock.Any(), principal, domain.MoveParams{RequestID: "req-1", Amount: "500"}).
					Times(1).
					Return(receipt(domain.IntentDeposit, "500", "1500", deposit), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "RequestIDFromHeader",
			body:   gin.H{"amount": "500.00", "account_number": fromNumber, "description": "salary"},
			header: http.Header{middleware.IdempotencyKeyHeader: {"req-1"}},
			buildStubs: func(service *MockService) {
				arg := domain.MoveParams{RequestID: "req-1", Account: fromNumber, Amount: "500.00", Description: "salary"}
				service.EXPECT().Deposit(gomock.Any(), principal, arg).Times(1).Return(receipt(domain.IntentDeposit, "500", "1500", deposit), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Replayed",
			body: gin.H{"amount": 500, "request_id": "req-1"},
			buildStubs: func(service *MockService) {
				r := receipt(domain.IntentDeposit, "500", "1500", deposit)
				r.Replayed = true
				service.EXPECT().Deposit(gomock.Any(), principal, gomock.Any()).Times(1).Return(r, nil)
			},
			wantStatus:   http.StatusOK,
			wantReplayed: true,
		},
		{
			name: "MissingAmount",
			body: gin.H{"description": "salary"},
			buildStubs: func(service *MockService) {
				service.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Amount is required",
		},
		{
			name: "MalformedAccount",
			body: gin.H{"amount": 5, "account_number": "12"},
			buildStubs: func(service *MockService) {
				service.EXPECT().Deposit(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Account number must be 13 digits",
		},
		{
			name: "NonPositive",
			body: gin.H{"amount": -5},
			buildStubs: func(service *MockService) {
				service.EXPECT().Deposit(gomock.Any(), principal, gomock.Any()).Times(1).Return(domain.Receipt{}, domain.ErrNonPositiveAmount)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Amount must be positive",
		},
		{
			name: "KeyReuse",
			body: gin.H{"amount": 5, "request_id": "req-1"},
			buildStubs: func(service *MockService) {
				service.EXPECT().Deposit(gomock.Any(), principal, gomock.Any()).Times(1).Return(domain.Receipt{}, domain.ErrIdempotencyKeyReuse)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  domain.ErrIdempotencyKeyReuse.Error(),
		},
		{
			name: "Busy",
			body: gin.H{"amount": 5},
			buildStubs: func(service *MockService) {
				service.EXPECT().Deposit(gomock.Any(), principal, gomock.Any()).Times(1).Return(domain.Receipt{}, domain.ErrBusy)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  domain.ErrBusy.Error(),
		},
		{
			name: "InternalError",
			body: gin.H{"amount": 5},
			buildStubs: func(service *MockService) {
				service.EXPECT().Deposit(gomock.Any(), principal, gomock.Any()).Times(1).Return(domain.Receipt{}, errorspkg.ErrInternal)
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  errorspkg.ErrInternal.Error(),
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			service := NewMockService(ctrl)
			tc.buildStubs(service)

			recorder := doRequest(newServer(t, ctrl, service), http.MethodPost, "/api/transactions/deposit", tc.body, tc.header)
			require.Equal(t, tc.wantStatus, recorder.Code)

			if tc.wantError != "" {
				var got map[string]any
				require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
				require.Equal(t, false, got["success"])
				require.Equal(t, tc.wantError, got["error"])

				if tc.wantStatus == http.StatusServiceUnavailable {
					require.Equal(t, "1", recorder.Header().Get("Retry-After"))
				}

				return
			}

			if tc.wantReplayed {
				require.Equal(t, "true", recorder.Header().Get(middleware.ReplayedHeader))
			} else {
				require.Empty(t, recorder.Header().Get(middleware.ReplayedHeader))
			}

			require.Contains(t, recorder.Body.String(), `"new_balance":1500.00`)
			require.Contains(t, recorder.Body.String(), `"balance_after":1500.00`)

			var got moveResponse
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
			require.True(t, got.Success)
			require.Equal(t, "Successfully deposited Rs.500.00", got.Message)
			require.Equal(t, deposit.Reference, got.Reference)
			require.Equal(t, "req-1", got.RequestID)
			require.Equal(t, "2024-03-01 10:30:00", got.Transaction.Date)
		})
	}
}

func TestWithdrawAPI(t *testing.T) {
	t.Parallel()

	t.Run("OK", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		withdrawal := record(2, fromNumber, domain.TypeWithdraw, "200", "1500", "1300")

		service := NewMockService(ctrl)
		service.EXPECT().
			Withdraw(gomock.Any(), principal, domain.MoveParams{Amount: "200"}).
			Times(1).
			Return(receipt(domain.IntentWithdraw, "200", "1300", withdrawal), nil)

		recorder := doRequest(newServer(t, ctrl, service), http.MethodPost, "/api/transactions/withdraw", gin.H{"amount": 200}, nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var got moveResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
		require.Equal(t, "Successfully withdrew Rs.200.00", got.Message)
		require.Equal(t, json.Number("1300.00"), got.NewBalance)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := NewMockService(ctrl)
		service.EXPECT().
			Withdraw(gomock.Any(), principal, gomock.Any()).
			Times(1).
			Return(domain.Receipt{}, domain.InsufficientFunds(decimal.RequireFromString("1500")))

		recorder := doRequest(newServer(t, ctrl, service), http.MethodPost, "/api/transactions/withdraw", gin.H{"amount": 2000}, nil)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.JSONEq(t, `{"success":false,"error":"Insufficient balance. Available: 1500.00"}`, recorder.Body.String())
	})
}

func TestTransferAPI(t *testing.T) {
	t.Parallel()

	out := record(3, fromNumber, domain.TypeTransferOut, "1500", "1500", "0")
	in := record(4, toNumber, domain.TypeTransferIn, "1500", "0", "1500")
	out.Counterparty, in.Counterparty = toNumber, fromNumber
	out.CorrelationID, in.CorrelationID = "c-1", "c-1"

	transferReceipt := receipt(domain.IntentTransfer, "1500", "0", out, in)
	transferReceipt.Counterparty = toNumber

	testCases := []struct {
		name       string
		body       any
		buildStubs func(service *MockService)
		wantStatus int
		wantError  string
	}{
		{
			name: "OK",
			body: gin.H{"to_account": toNumber, "amount": 1500, "from_account": fromNumber},
			buildStubs: func(service *MockService) {
				arg := domain.MoveParams{Account: fromNumber, Counterparty: toNumber, Amount: "1500"}
				service.EXPECT().Transfer(gomock.Any(), principal, arg).Times(1).Return(transferReceipt, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "MissingRecipient",
			body: gin.H{"amount": 1500},
			buildStubs: func(service *MockService) {
				service.EXPECT().Transfer(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "To account is required",
		},
		{
			name: "MalformedRecipient",
			body: gin.H{"to_account": "100100", "amount": 1500},
			buildStubs: func(service *MockService) {
				service.EXPECT().Transfer(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "To account must be 13 digits",
		},
		{
			name: "RecipientNotFound",
			body: gin.H{"to_account": toNumber, "amount": 10},
			buildStubs: func(service *MockService) {
				service.EXPECT().Transfer(gomock.Any(), principal, gomock.Any()).Times(1).Return(domain.Receipt{}, domain.ErrRecipientNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantError:  domain.ErrRecipientNotFound.Error(),
		},
		{
			name: "SameAccount",
			body: gin.H{"to_account": fromNumber, "amount": 10},
			buildStubs: func(service *MockService) {
				service.EXPECT().Transfer(gomock.Any(), principal, gomock.Any()).Times(1).Return(domain.Receipt{}, domain.ErrSameAccount)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  domain.ErrSameAccount.Error(),
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			service := NewMockService(ctrl)
			tc.buildStubs(service)

			recorder := doRequest(newServer(t, ctrl, service), http.MethodPost, "/api/transactions/transfer", tc.body, nil)
			require.Equal(t, tc.wantStatus, recorder.Code)

			if tc.wantError != "" {
				require.JSONEq(t, `{"success":false,"error":"`+tc.wantError+`"}`, recorder.Body.String())
				return
			}

			var got transferResponse
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
			require.True(t, got.Success)
			require.Equal(t, "Successfully transferred Rs.1500.00 to "+toNumber, got.Message)
			require.Equal(t, toNumber, got.ToAccount)
			require.Equal(t, json.Number("0.00"), got.NewBalance)
			require.Len(t, got.Transactions, 2)
			require.Equal(t, got.Transactions[0].CorrelationID, got.Transactions[1].CorrelationID)
			require.Equal(t, domain.TypeTransferOut, got.Transactions[0].Type)
			require.Equal(t, domain.TypeTransferIn, got.Transactions[1].Type)
		})
	}
}

func TestHistoryAPI(t *testing.T) {
	t.Parallel()

	acc := domain.Account{Number: fromNumber, OwnerID: principal.UserID, Balance: decimal.RequireFromString("1300")}
	txs := []domain.Transaction{
		record(2, fromNumber, domain.TypeWithdraw, "200", "1500", "1300"),
		record(1, fromNumber, domain.TypeDeposit, "500", "1000", "1500"),
	}

	testCases := []struct {
		name       string
		query      string
		buildStubs func(service *MockService)
		wantStatus int
		check      func(t *testing.T, recorder *httptest.ResponseRecorder)
	}{
		{
			name:  "FirstPage",
			query: "?limit=2",
			buildStubs: func(service *MockService) {
				service.EXPECT().
					History(gomock.Any(), principal, "", int32(2), int32(0), int64(0)).
					Times(1).
					Return(domain.HistoryPage{Account: acc, Transactions: txs, NextCursor: 1}, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				var got historyResponse
				require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
				require.Equal(t, fromNumber, got.AccountNumber)
				require.Equal(t, 2, got.Count)
				require.Equal(t, int64(1), got.NextCursor)
				require.Equal(t, txs[0].Reference, got.Transactions[0].Reference)
			},
		},
		{
			name:  "LastPage",
			query: "?limit=2&cursor=1&account_number=" + fromNumber,
			buildStubs: func(service *MockService) {
				service.EXPECT().
					History(gomock.Any(), principal, fromNumber, int32(2), int32(0), int64(1)).
					Times(1).
					Return(domain.HistoryPage{Account: acc, Transactions: []domain.Transaction{}}, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.JSONEq(t, `{"success":true,"account_number":"1001000000001","transactions":[],"count":0}`, recorder.Body.String())
			},
		},
		{
			name:  "NegativeLimit",
			query: "?limit=-1",
			buildStubs: func(service *MockService) {
				service.EXPECT().History(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "Forbidden",
			query: "?account_number=1001000000009",
			buildStubs: func(service *MockService) {
				service.EXPECT().
					History(gomock.Any(), principal, "1001000000009", int32(0), int32(0), int64(0)).
					Times(1).
					Return(domain.HistoryPage{}, domain.ErrForbidden)
			},
			wantStatus: http.StatusForbidden,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			service := NewMockService(ctrl)
			tc.buildStubs(service)

			recorder := doRequest(newServer(t, ctrl, service), http.MethodGet, "/api/transactions/history"+tc.query, nil, nil)
			require.Equal(t, tc.wantStatus, recorder.Code)

			if tc.check != nil {
				tc.check(t, recorder)
			}
		})
	}
}

func TestStatsAPI(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	acc := domain.Account{Number: fromNumber, OwnerID: principal.UserID, Balance: decimal.RequireFromString("1300")}
	txs := []domain.Transaction{
		record(2, fromNumber, domain.TypeWithdraw, "200", "1500", "1300"),
		record(1, fromNumber, domain.TypeDeposit, "500", "1000", "1500"),
	}

	service := NewMockService(ctrl)
	service.EXPECT().Stats(gomock.Any(), principal, "").Times(1).Return(acc, domain.NewStats(acc.Balance, txs), nil)

	recorder := doRequest(newServer(t, ctrl, service), http.MethodGet, "/api/dashboard/stats", nil, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(),
		`"stats":{"balance":1300.00,"total_deposits":500.00,"total_withdrawals":200.00,`+
			`"total_transfers_out":0.00,"total_transfers_in":0.00,"transaction_count":2}`)

	var got statsResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Len(t, got.RecentTransactions, 2)
}

func TestExportAPI(t *testing.T) {
	t.Parallel()

	acc := domain.Account{Number: fromNumber, OwnerID: principal.UserID, Balance: decimal.RequireFromString("1300")}
	txs := []domain.Transaction{
		record(2, fromNumber, domain.TypeWithdraw, "200", "1500", "1300"),
		record(1, fromNumber, domain.TypeDeposit, "500", "1000", "1500"),
	}
	page := domain.HistoryPage{Account: acc, Transactions: txs}

	t.Run("CSV", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := NewMockService(ctrl)
		service.EXPECT().History(gomock.Any(), principal, "", int32(exportLimit), int32(0), int64(0)).Times(1).Return(page, nil)

		recorder := doRequest(newServer(t, ctrl, service), http.MethodGet, "/api/transactions/export", nil, nil)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Contains(t, recorder.Header().Get("Content-Type"), "text/csv")
		require.Contains(t, recorder.Header().Get("Content-Disposition"), "statement-"+fromNumber+".csv")

		rows, err := csv.NewReader(recorder.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, statementHeader, rows[0])
		require.Equal(t, []string{"2024-03-01 10:30:00", txs[0].Reference, "withdraw", "200.00", "1500.00", "1300.00", "", "Deposit"}, rows[1])
	})

	t.Run("XML", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := NewMockService(ctrl)
		service.EXPECT().History(gomock.Any(), principal, "", int32(5), int32(0), int64(0)).Times(1).Return(page, nil)

		recorder := doRequest(newServer(t, ctrl, service), http.MethodGet, "/api/transactions/export?format=xml&limit=5", nil, nil)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Contains(t, recorder.Header().Get("Content-Type"), "application/xml")

		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromBytes(recorder.Body.Bytes()))

		root := doc.SelectElement("statement")
		require.NotNil(t, root)
		require.Equal(t, fromNumber, root.SelectAttrValue("account_number", ""))
		require.Equal(t, "1300.00", root.SelectElement("balance").Text())

		items := doc.FindElements("//transaction")
		require.Len(t, items, 2)
		require.Equal(t, "withdraw", items[0].SelectAttrValue("type", ""))
		require.Equal(t, "200.00", items[0].SelectElement("amount").Text())
		require.Nil(t, items[0].SelectElement("counterparty"))
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := NewMockService(ctrl)
		service.EXPECT().History(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		recorder := doRequest(newServer(t, ctrl, service), http.MethodGet, "/api/transactions/export?format=pdf", nil, nil)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.JSONEq(t, `{"success":false,"error":"Format must be one of: csv, xml"}`, recorder.Body.String())
	})
}
