package ledgerhttp

import (
	"context"
	"errors"
	"net/http"

	"fundledger/internal/ledger"
	"fundledger/internal/logger"
	"fundledger/internal/store"
	"fundledger/internal/types"

	"github.com/gin-gonic/gin"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidFlow):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrInsufficientPosition), errors.Is(err, types.ErrInsufficientCash):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrAccountExists), errors.Is(err, types.ErrGapTooLarge):
		return http.StatusConflict
	case errors.Is(err, types.ErrExternalData):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("HTTP %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
