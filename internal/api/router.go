package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the public rewards API, the internal routes used by other
// services, health and metrics.
func NewRouter(h *Handler, auth *Authenticator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logging("/healthz", "/metrics"), Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/", auth.Middleware())

	rewards := authed.Group("/api/rewards")
	rewards.GET("", h.GetRewards)
	rewards.POST("/spin", h.Spin)
	rewards.GET("/history", h.History)
	rewards.GET("/events", h.Events)

	bonus := authed.Group("/api/bonus")
	bonus.GET("", h.GetBonus)
	bonus.POST("/spin", h.BonusSpin)

	authed.GET("/api/wallet/transactions", h.Transactions)

	internal := authed.Group("/internal")
	internal.POST("/wallet/debit", RequireRole(RoleWithdrawals), h.Debit)
	internal.POST("/accounts/:account_id/flag", RequireRole(RoleAdmin), h.SetFlag)
	internal.POST("/accounts/:account_id/reconcile", RequireRole(RoleAdmin), h.Reconcile)

	return r
}
