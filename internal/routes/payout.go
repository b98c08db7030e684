package routes

import (
	"liquidityreward/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupPayoutRoutes sets up payout settlement and operator routes
func SetupPayoutRoutes(r *gin.RouterGroup, h *handlers.RewardHandler) {
	payout := r.Group("/payout")
	{
		payout.GET("", h.ListPayouts)
		payout.GET("/process", h.ProcessPayouts)
		payout.POST("/release-stuck", h.ReleaseStuck)
	}
}
