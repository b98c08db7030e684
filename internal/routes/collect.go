package routes

import (
	"liquidityreward/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupCollectRoutes sets up the snapshot collection triggers
func SetupCollectRoutes(r *gin.RouterGroup, h *handlers.RewardHandler) {
	collect := r.Group("/collect")
	{
		collect.GET("/chain/:chain", h.CollectChain)
		collect.GET("/competition", h.CollectCompetition)
	}
}
