package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/goals"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type openAccountRequest struct {
	CustomerID string `json:"customer_id"`
	Type       string `json:"type"`
	Currency   string `json:"currency"`
}

type applyTransactionRequest struct {
	ReferenceID string          `json:"reference_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type createGoalRequest struct {
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	TargetAmount     decimal.Decimal  `json:"target_amount"`
	DueDate          *time.Time       `json:"due_date"`
	AutoSweepEnabled bool             `json:"auto_sweep_enabled"`
	AutoSweepAmount  *decimal.Decimal `json:"auto_sweep_amount"`
	AutoSweepCadence string           `json:"auto_sweep_cadence"`
}

type updateGoalRequest struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	TargetAmount     *decimal.Decimal `json:"target_amount"`
	DueDate          *time.Time       `json:"due_date"`
	AutoSweepEnabled *bool            `json:"auto_sweep_enabled"`
	AutoSweepAmount  *decimal.Decimal `json:"auto_sweep_amount"`
	AutoSweepCadence *string          `json:"auto_sweep_cadence"`
	Status           *string          `json:"status"`
}

type contributeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id"`
	Description string          `json:"description"`
}

// bindJSON decodes the body into target. An empty body leaves target zeroed.
func bindJSON(ctx *gin.Context, target interface{}) bool {
	if err := ctx.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body", false))
		return false
	}
	return true
}

func (handler *httpHandler) handleOpenAccount(ctx *gin.Context) {
	var request openAccountRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := handler.ledger.OpenAccount(requestCtx, ledger.OpenAccountRequest{
		CustomerID: request.CustomerID,
		Type:       request.Type,
		Currency:   request.Currency,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, account)
}

func (handler *httpHandler) handleGetAccount(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := handler.ledger.GetAccount(requestCtx, ctx.Param(paramAccountID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, account)
}

func (handler *httpHandler) handleGetBalance(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.ledger.GetBalance(requestCtx, ctx.Param(paramAccountID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, balance)
}

func (handler *httpHandler) handleListTransactions(ctx *gin.Context) {
	page, ok := pageRequest(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	history, err := handler.ledger.GetTransactionHistory(requestCtx, ctx.Param(paramAccountID), page)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, history)
}

func (handler *httpHandler) handleApplyTransaction(ctx *gin.Context) {
	var request applyTransactionRequest
	if !bindJSON(ctx, &request) {
		return
	}
	transactionType, err := ledger.ParseTransactionType(request.Type)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := handler.ledger.ApplyTransaction(requestCtx, ledger.TransactionRequest{
		AccountID:   ctx.Param(paramAccountID),
		ReferenceID: request.ReferenceID,
		Type:        transactionType,
		Amount:      request.Amount,
		Description: request.Description,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, account)
}

func (handler *httpHandler) handleTransition(transition func(ctx context.Context, accountID string) (ledger.AccountSnapshot, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		account, err := transition(requestCtx, ctx.Param(paramAccountID))
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, account)
	}
}

func (handler *httpHandler) handleCreateGoal(ctx *gin.Context) {
	var request createGoalRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	goal, err := handler.goals.CreateGoal(requestCtx, goals.CreateGoalRequest{
		AccountID:        ctx.Param(paramAccountID),
		Name:             request.Name,
		Description:      request.Description,
		TargetAmount:     request.TargetAmount,
		DueDate:          request.DueDate,
		AutoSweepEnabled: request.AutoSweepEnabled,
		AutoSweepAmount:  request.AutoSweepAmount,
		AutoSweepCadence: request.AutoSweepCadence,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, goal)
}

func (handler *httpHandler) handleListGoals(ctx *gin.Context) {
	page, ok := pageRequest(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.goals.ListGoals(requestCtx, ctx.Param(paramAccountID), page)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (handler *httpHandler) handleGetGoal(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	goal, err := handler.goals.GetGoal(requestCtx, ctx.Param(paramAccountID), ctx.Param(paramGoalID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, goal)
}

func (handler *httpHandler) handleUpdateGoal(ctx *gin.Context) {
	var request updateGoalRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	goal, err := handler.goals.UpdateGoal(requestCtx, ctx.Param(paramAccountID), ctx.Param(paramGoalID), goals.UpdateGoalRequest{
		Name:             request.Name,
		Description:      request.Description,
		TargetAmount:     request.TargetAmount,
		DueDate:          request.DueDate,
		AutoSweepEnabled: request.AutoSweepEnabled,
		AutoSweepAmount:  request.AutoSweepAmount,
		AutoSweepCadence: request.AutoSweepCadence,
		Status:           request.Status,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, goal)
}

func (handler *httpHandler) handleContribute(ctx *gin.Context) {
	var request contributeRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	goal, err := handler.goals.Contribute(requestCtx, goals.ContributeRequest{
		AccountID:   ctx.Param(paramAccountID),
		GoalID:      ctx.Param(paramGoalID),
		Amount:      request.Amount,
		ReferenceID: request.ReferenceID,
		Description: request.Description,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, goal)
}

func (handler *httpHandler) handleListContributions(ctx *gin.Context) {
	page, ok := pageRequest(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.goals.ListContributions(requestCtx, ctx.Param(paramAccountID), ctx.Param(paramGoalID), page)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}
