// Package httpapi exposes the ledger and goal engines over JSON/HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/goals"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	paramAccountID      = "accountID"
	paramGoalID         = "goalID"
	queryPage           = "page"
	queryPageSize       = "size"
	defaultTimeout      = 10 * time.Second
	shutdownGracePeriod = 5 * time.Second
)

// LedgerAPI is the ledger surface served over HTTP.
type LedgerAPI interface {
	OpenAccount(ctx context.Context, request ledger.OpenAccountRequest) (ledger.AccountSnapshot, error)
	GetAccount(ctx context.Context, accountID string) (ledger.AccountSnapshot, error)
	SuspendAccount(ctx context.Context, accountID string) (ledger.AccountSnapshot, error)
	ReactivateAccount(ctx context.Context, accountID string) (ledger.AccountSnapshot, error)
	CloseAccount(ctx context.Context, accountID string) (ledger.AccountSnapshot, error)
	ApplyTransaction(ctx context.Context, request ledger.TransactionRequest) (ledger.AccountSnapshot, error)
	GetBalance(ctx context.Context, accountID string) (ledger.BalanceSnapshot, error)
	GetTransactionHistory(ctx context.Context, accountID string, request ledger.PageRequest) (ledger.Page[ledger.TransactionLogEntry], error)
}

// GoalAPI is the goal surface served over HTTP.
type GoalAPI interface {
	CreateGoal(ctx context.Context, request goals.CreateGoalRequest) (goals.Goal, error)
	UpdateGoal(ctx context.Context, accountID string, goalID string, request goals.UpdateGoalRequest) (goals.Goal, error)
	GetGoal(ctx context.Context, accountID string, goalID string) (goals.Goal, error)
	ListGoals(ctx context.Context, accountID string, request ledger.PageRequest) (ledger.Page[goals.Goal], error)
	Contribute(ctx context.Context, request goals.ContributeRequest) (goals.Goal, error)
	ListContributions(ctx context.Context, accountID string, goalID string, request ledger.PageRequest) (ledger.Page[goals.Contribution], error)
}

// Config tunes the router.
type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type httpHandler struct {
	logger  *zap.Logger
	ledger  LedgerAPI
	goals   GoalAPI
	timeout time.Duration
}

// NewRouter wires every route onto a gin engine.
func NewRouter(cfg Config, ledgerAPI LedgerAPI, goalAPI GoalAPI, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	handler := &httpHandler{logger: logger, ledger: ledgerAPI, goals: goalAPI, timeout: timeout}

	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.POST("/accounts", handler.handleOpenAccount)

	account := v1.Group("/accounts/:" + paramAccountID)
	account.GET("", handler.handleGetAccount)
	account.GET("/balance", handler.handleGetBalance)
	account.GET("/transactions", handler.handleListTransactions)
	account.POST("/transactions", handler.handleApplyTransaction)
	account.POST("/suspend", handler.handleTransition(ledgerAPI.SuspendAccount))
	account.POST("/reactivate", handler.handleTransition(ledgerAPI.ReactivateAccount))
	account.POST("/close", handler.handleTransition(ledgerAPI.CloseAccount))

	account.POST("/goals", handler.handleCreateGoal)
	account.GET("/goals", handler.handleListGoals)
	goal := account.Group("/goals/:" + paramGoalID)
	goal.GET("", handler.handleGetGoal)
	goal.PATCH("", handler.handleUpdateGoal)
	goal.POST("/contributions", handler.handleContribute)
	goal.GET("/contributions", handler.handleListContributions)

	return router
}

// Run serves handler on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

func pageRequest(ctx *gin.Context) (ledger.PageRequest, bool) {
	page, err := queryInt(ctx, queryPage)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "page must be an integer", false))
		return ledger.PageRequest{}, false
	}
	size, err := queryInt(ctx, queryPageSize)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "size must be an integer", false))
		return ledger.PageRequest{}, false
	}
	return ledger.PageRequest{Page: page, Size: size}, true
}

func queryInt(ctx *gin.Context, name string) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
