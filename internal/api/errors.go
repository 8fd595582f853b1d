package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rewards_service/internal/account"
	"rewards_service/internal/bonus"
	"rewards_service/internal/ledger"
	"rewards_service/internal/spin"
	"rewards_service/internal/wallet"
)

var errWagerUnavailable = errors.New("wager data unavailable")

func writeError(c *gin.Context, err error) {
	var cd *bonus.CooldownError
	switch {
	case errors.As(err, &cd):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":          err.Error(),
			"retry_after_ms": cd.Remaining.Milliseconds(),
			"next_bonus_at":  cd.NextBonusAt,
		})
	case errors.Is(err, spin.ErrInsufficientTickets):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrAccountFlagged):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrRequestIDConflict):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, account.ErrInvalidAccountID),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrMissingReference),
		errors.Is(err, ledger.ErrRequestIDTooLong),
		errors.Is(err, spin.ErrSnapshotMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrPersistence), errors.Is(err, errWagerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
