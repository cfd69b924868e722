package httpapi

import "github.com/gin-gonic/gin"

// SetupRoutes wires the tree-building API onto router, following the
// teacher's /health + /api/v1 grouping convention.
func SetupRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/topics/:topic_id/submit", h.SubmitTopic)
		v1.GET("/trees/:tree_id", h.GetTree)
		v1.GET("/trajectories/:trajectory_id", h.GetTrajectory)
	}
}
