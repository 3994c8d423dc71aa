package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/sweepledger/pkg/goals"
	"github.com/MarkoPoloResearchLab/sweepledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeConcurrentUpdate   = "concurrent_update"
	errorCodeNotFound           = "not_found"
	errorCodeInvalidStatus      = "invalid_status"
	errorCodeInsufficientFunds  = "insufficient_funds"
	errorCodeLimitViolation     = "limit_violation"
	errorCodeContributionFailed = "contribution_failed"
	errorCodeInvalidRequest     = "invalid_request"
	errorCodeInvalidPayload     = "invalid_payload"
	errorCodeInternal           = "internal"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first matching sentinel wins.
var errorMappings = []errorMapping{
	{ledger.ErrConcurrentUpdate, http.StatusConflict, errorCodeConcurrentUpdate},
	{ledger.ErrNotFound, http.StatusNotFound, errorCodeNotFound},
	{goals.ErrGoalNotFound, http.StatusNotFound, errorCodeNotFound},
	{ledger.ErrInvalidStatus, http.StatusConflict, errorCodeInvalidStatus},
	{ledger.ErrInsufficientFunds, http.StatusUnprocessableEntity, errorCodeInsufficientFunds},
	{ledger.ErrLimitViolation, http.StatusUnprocessableEntity, errorCodeLimitViolation},
	{goals.ErrGoalContributionFailed, http.StatusUnprocessableEntity, errorCodeContributionFailed},
	{ledger.ErrInvalidIdempotencyKey, http.StatusBadRequest, errorCodeInvalidRequest},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, errorCodeInvalidRequest},
	{ledger.ErrInvalidAccountID, http.StatusBadRequest, errorCodeInvalidRequest},
	{ledger.ErrInvalidTransactionType, http.StatusBadRequest, errorCodeInvalidRequest},
	{ledger.ErrInvalidCustomerID, http.StatusBadRequest, errorCodeInvalidRequest},
	{ledger.ErrUnsupportedCurrency, http.StatusBadRequest, errorCodeInvalidRequest},
	{goals.ErrGoalValidation, http.StatusBadRequest, errorCodeInvalidRequest},
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, err.Error(), ledger.IsRetryable(err)))
			return
		}
	}
	handler.logger.Error("request failed",
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.FullPath()),
		zap.Error(err),
	)
	ctx.JSON(http.StatusInternalServerError, errorResponse(errorCodeInternal, "internal error", false))
}

func errorResponse(code string, message string, retryable bool) gin.H {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if retryable {
		body["retryable"] = true
	}
	return gin.H{"error": body}
}
