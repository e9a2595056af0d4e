package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/valora-txauth/internal/config"
	"github.com/smallbiznis/valora-txauth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-txauth/internal/http/middleware"
	"github.com/smallbiznis/valora-txauth/internal/middleware"
)

// Handlers groups the endpoint handler sets.
type Handlers struct {
	Auth     *handler.AuthHandler
	Transfer *handler.TransferHandler
	Admin    *handler.AdminHandler
	Metrics  http.Handler
}

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, handlers Handlers, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.ForwardedByClientIP = true
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", handlers.Admin.Health)
	if handlers.Metrics != nil {
		r.GET("/metrics", gin.WrapH(handlers.Metrics))
	}

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", handlers.Auth.Login)
		authGroup.POST("/refresh", handlers.Auth.Refresh)
		authGroup.POST("/logout", authMiddleware.ValidateJWT, handlers.Auth.Logout)
		authGroup.GET("/me", authMiddleware.ValidateJWT, handlers.Auth.Me)
	}

	api := r.Group("/api")
	{
		transactions := api.Group("/transactions", authMiddleware.ValidateJWT)
		{
			transactions.POST("/initiate", handlers.Transfer.Initiate)
			transactions.POST("/verify-otp", handlers.Transfer.Verify)
		}

		api.POST("/voice/verify-otp", authMiddleware.ValidateJWT, handlers.Transfer.VerifyUtterance)

		api.GET("/security/events", authMiddleware.ValidateJWT, handlers.Auth.SecurityEvents)

		admin := api.Group("/admin", httpmiddleware.AdminKey(cfg.AdminAPIKey))
		{
			admin.GET("/sessions", handlers.Admin.ActiveSessions)
			admin.DELETE("/users/:id/cache", handlers.Admin.PurgeUser)
		}
	}

	return r
}
