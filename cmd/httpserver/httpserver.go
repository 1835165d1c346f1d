// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/mini-bank/internal/accountdelivery"
	"github.com/go-petr/mini-bank/internal/accountrepo"
	"github.com/go-petr/mini-bank/internal/accountservice"
	"github.com/go-petr/mini-bank/internal/janitor"
	"github.com/go-petr/mini-bank/internal/ledgerdelivery"
	"github.com/go-petr/mini-bank/internal/ledgerrepo"
	"github.com/go-petr/mini-bank/internal/ledgerservice"
	"github.com/go-petr/mini-bank/internal/memstore"
	"github.com/go-petr/mini-bank/internal/middleware"
	"github.com/go-petr/mini-bank/internal/notify"
	"github.com/go-petr/mini-bank/internal/sessionrepo"
	"github.com/go-petr/mini-bank/internal/sessionservice"
	"github.com/go-petr/mini-bank/internal/txnrepo"
	"github.com/go-petr/mini-bank/internal/userdelivery"
	"github.com/go-petr/mini-bank/internal/userrepo"
	"github.com/go-petr/mini-bank/internal/userservice"
	"github.com/go-petr/mini-bank/pkg/configpkg"
	"github.com/go-petr/mini-bank/pkg/refpkg"
	"github.com/go-petr/mini-bank/pkg/tokenpkg"
)

// DriverMemory selects the in-memory store instead of a SQL database.
const DriverMemory = "memory"

// Server holds db connection, handlers router and configuration.
//
// DB is nil when the in-memory store is used. Cache is nil when Redis is not configured.
type Server struct {
	DB      *sql.DB
	Cache   *redis.Client
	Engine  *gin.Engine
	Config  configpkg.Config
	Ledger  *ledgerservice.Service
	Janitor *janitor.Janitor
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

type sessionStore interface {
	sessionservice.Repo
	janitor.SessionRepo
}

type ledgerStore interface {
	ledgerservice.Repo
	janitor.IdempotencyRepo
}

type repos struct {
	users    userservice.Repo
	sessions sessionStore
	accounts accountservice.Repo
	ledger   ledgerStore
	history  ledgerservice.HistoryRepo
}

func newRepos(conn *sql.DB, refs *refpkg.Generator, config configpkg.Config) repos {
	if conn == nil {
		store := memstore.New(refs, config.LockTimeout)

		return repos{
			users:    store.Users(),
			sessions: store.Sessions(),
			accounts: store.Accounts(),
			ledger:   store.Ledger(),
			history:  store.Transactions(),
		}
	}

	return repos{
		users:    userrepo.NewRepoPGS(conn),
		sessions: sessionrepo.NewRepoPGS(conn),
		accounts: accountrepo.NewRepoPGS(conn),
		ledger:   ledgerrepo.NewRepoPGS(conn, refs, config.LockTimeout),
		history:  txnrepo.NewRepoPGS(conn, refs),
	}
}

// New creates Server type with instantiated domains and routes.
//
// A nil conn selects the in-memory store. A nil cache disables the Redis response
// cache and login throttling.
func New(conn *sql.DB, cache *redis.Client, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	refs, err := refpkg.New(config.NodeID)
	if err != nil {
		return nil, fmt.Errorf("cannot create reference generator: %w", err)
	}

	maxDeposit, err := decimal.NewFromString(config.MaxDeposit)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_DEPOSIT %q: %w", config.MaxDeposit, err)
	}

	tokenMaker, err := tokenpkg.NewMaker(config.TokenKind, config.TokenSymmetricKey)
	if err != nil {
		return nil, fmt.Errorf("cannot create token maker: %w", err)
	}

	r := newRepos(conn, refs, config)

	userService := userservice.New(r.users)
	accountService := accountservice.New(r.accounts)
	ledgerService := ledgerservice.New(r.ledger, r.history, accountService, notify.New(config), maxDeposit)

	sessionService, err := sessionservice.New(r.sessions, config, tokenMaker)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize session service: %w", err)
	}

	if err := accountdelivery.RegisterValidators(); err != nil {
		return nil, errors.New("cannot register account validators")
	}

	userHandler := userdelivery.NewHandler(userService, sessionService, config.CookieSecure)
	accountHandler := accountdelivery.NewHandler(accountService)
	ledgerHandler := ledgerdelivery.NewHandler(ledgerService)

	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	engine.GET("/health", func(gctx *gin.Context) {
		gctx.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := engine.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", userHandler.Register)
	auth.POST("/login", middleware.LoginRateLimit(cache, config.LoginAttemptsPerMinute), userHandler.Login)
	auth.POST("/logout", userHandler.Logout)
	auth.GET("/check", userHandler.Check)

	requireAuth := middleware.AuthMiddleware(sessionService)

	account := api.Group("/account", requireAuth)
	account.POST("/create", accountHandler.Create)
	account.GET("/info", accountHandler.Info)
	account.GET("/balance", accountHandler.Balance)

	txs := api.Group("/transactions", requireAuth)
	money := txs.Group("", middleware.Idempotency(cache, config.IdempotencyTTL))
	money.POST("/deposit", ledgerHandler.Deposit)
	money.POST("/withdraw", ledgerHandler.Withdraw)
	money.POST("/transfer", ledgerHandler.Transfer)
	txs.GET("/history", ledgerHandler.History)
	txs.GET("/export", ledgerHandler.Export)

	api.GET("/dashboard/stats", requireAuth, ledgerHandler.Stats)

	server := &Server{
		DB:      conn,
		Cache:   cache,
		Engine:  engine,
		Config:  config,
		Ledger:  ledgerService,
		Janitor: janitor.New(r.sessions, r.ledger, config.IdempotencyTTL, logger),
	}

	return server, nil
}
