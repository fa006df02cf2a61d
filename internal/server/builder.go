package server

import (
	"net/http"

	"geminivoice-go/internal/config"
	"geminivoice-go/internal/handlers/management"
	mw "geminivoice-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Dependencies encapsulates what the admin engine serves.
type Dependencies struct {
	Handler *management.AdminAPIHandler
	// ValidateKey checks an admin key. Nil rejects every management request.
	ValidateKey func(key string) bool
}

// BuildAdminEngine constructs the management engine. /healthz and /metrics are open;
// everything under /api/management needs the admin key.
func BuildAdminEngine(cfg config.AdminConfig, debug bool, deps Dependencies) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	_ = engine.SetTrustedProxies(nil)

	engine.Use(mw.Recovery(), mw.RequestID(), mw.RequestLogger(), mw.Metrics())
	engine.Use(mw.RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	engine.GET("/healthz", deps.Handler.GetHealth)
	engine.GET("/metrics", mw.MetricsHandler)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "type": "invalid_request_error", "message": "route not found"}})
	})

	mg := engine.Group("/api/management")
	mg.Use(mw.AdminAuth(deps.ValidateKey))
	deps.Handler.RegisterRoutes(mg)
	return engine
}
