package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由，limiter 为 nil 时写接口不限流
func SetupRouter(h *Handler, limiter *RateLimiter) *gin.Engine {
	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		api.POST("/accrue", limiter.Middleware(), h.Accrue)
		api.POST("/redeem", limiter.Middleware(), h.Redeem)
		api.GET("/rewards", h.ListRewards)

		api.GET("/balance/:userId", h.GetBalance)
		api.GET("/tier/:userId", h.GetTier)
		api.GET("/activity/:userId", h.GetActivity)
		api.GET("/reconcile/:userId", h.Reconcile)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
