package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rewards_service/internal/bonus"
	"rewards_service/internal/logging"
	"rewards_service/internal/notify"
	"rewards_service/internal/spin"
	"rewards_service/internal/wager"
	"rewards_service/internal/wallet"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// eventWriteDeadline bounds a single event write. The stream itself is not
// bound by the server's WriteTimeout.
const eventWriteDeadline = 10 * time.Second

type Handler struct {
	ledger *spin.Ledger
	bonus  *bonus.Service
	wallet *wallet.Service
	wagers wager.Provider
	hub    *notify.Hub
}

func NewHandler(l *spin.Ledger, b *bonus.Service, w *wallet.Service, wagers wager.Provider, hub *notify.Hub) *Handler {
	return &Handler{ledger: l, bonus: b, wallet: w, wagers: wagers, hub: hub}
}

type spinRequest struct {
	RequestID string `json:"request_id" binding:"omitempty,max=64"`
}

type debitRequest struct {
	AccountID   string          `json:"account_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id" binding:"required,max=255"`
}

type flagRequest struct {
	Flagged *bool `json:"flagged" binding:"required"`
}

func (h *Handler) snapshot(c *gin.Context, accountID string) (wager.Snapshot, error) {
	s, err := h.wagers.GetWagerSnapshot(c.Request.Context(), accountID)
	if err != nil {
		logging.FromContext(c.Request.Context()).Error().Err(err).Str("account_id", accountID).Msg("wager lookup failed")
		return wager.Snapshot{}, fmt.Errorf("%w: %w", errWagerUnavailable, err)
	}
	return s, nil
}

// requestID prefers the Idempotency-Key header over the body field.
func requestID(c *gin.Context, body string) string {
	if key := c.GetHeader(IdempotencyKeyHeader); key != "" {
		return key
	}
	return body
}

func (h *Handler) GetRewards(c *gin.Context) {
	accountID := c.GetString(AccountIDKey)
	snap, err := h.snapshot(c, accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	summary, err := h.ledger.Lookup(c.Request.Context(), accountID, snap)
	if err != nil {
		writeError(c, err)
		return
	}
	status, err := h.bonus.Check(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rewards":        summary,
		"wagered_amount": snap.WageredAmount,
		"ticket_unit":    h.ledger.TicketUnit(),
		"bonus":          status,
	})
}

func (h *Handler) Spin(c *gin.Context) {
	var req spinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	accountID := c.GetString(AccountIDKey)
	snap, err := h.snapshot(c, accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.ledger.Spin(c.Request.Context(), spin.Request{
		AccountID: accountID,
		Snapshot:  snap,
		RequestID: requestID(c, req.RequestID),
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(spin.DefaultHistoryLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}
	entries, err := h.ledger.History(c.Request.Context(), c.GetString(AccountIDKey), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"spin_id":            e.ID,
			"at":                 e.CreatedAt,
			"result":             e.Result,
			"prize_label":        e.PrizeLabel,
			"prize_value":        e.PrizeValue,
			"is_bonus":           e.IsBonus,
			"tickets_used_after": e.TicketsUsedAfter,
		})
	}
	c.JSON(http.StatusOK, gin.H{"spins": out})
}

// Events streams the caller's settled spins as server-sent events until the
// client goes away.
func (h *Handler) Events(c *gin.Context) {
	events, cancel := h.hub.Subscribe(c.GetString(AccountIDKey))
	defer cancel()

	rc := http.NewResponseController(c.Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logging.FromContext(c.Request.Context()).Warn().Err(err).Msg("event stream keeps the server write timeout")
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			_ = rc.SetWriteDeadline(time.Now().Add(eventWriteDeadline))
			c.SSEvent("spin", e)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) GetBonus(c *gin.Context) {
	status, err := h.bonus.Check(c.Request.Context(), c.GetString(AccountIDKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) BonusSpin(c *gin.Context) {
	var req spinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := h.bonus.Spin(c.Request.Context(), bonus.Request{
		AccountID: c.GetString(AccountIDKey),
		RequestID: requestID(c, req.RequestID),
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Debit is called by the withdrawal service once a withdrawal is approved.
func (h *Handler) Debit(c *gin.Context) {
	var req debitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.wallet.Debit(c.Request.Context(), wallet.TransactionRequest{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) SetFlag(c *gin.Context) {
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID := c.Param("account_id")
	if err := h.ledger.SetFlagged(c.Request.Context(), accountID, *req.Flagged); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "flagged": *req.Flagged})
}

func (h *Handler) Reconcile(c *gin.Context) {
	rec, err := h.ledger.Reconcile(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Transactions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}
	txns, err := h.wallet.Transactions(c.Request.Context(), c.GetString(AccountIDKey), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}
