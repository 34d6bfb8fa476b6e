package httpapi

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// NewRouter assembles the gin engine with middleware and every route.
func NewRouter(h *Handler, rateLimitRPM int) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(SecurityHeaders())
	router.Use(RateLimit(rateLimitRPM))

	router.POST("/check-url", h.CheckURL)
	router.POST("/check-ssl", h.CheckSSL)
	router.POST("/expand-link", h.ExpandLink)
	router.POST("/check-breach", h.CheckBreach)
	router.POST("/check-email-text", h.CheckEmailText)
	router.POST("/comprehensive-check", h.ComprehensiveCheck)

	router.GET("/health", h.Health)
	router.GET("/health/detailed", h.HealthDetailed)

	admin := router.Group("/admin/models")
	admin.GET("/status", h.ModelStatus)
	admin.POST("/switch", h.SwitchModel)
	admin.POST("/retrain", h.RetrainModel)

	return router
}
