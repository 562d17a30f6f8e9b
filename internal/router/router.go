package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"sponsor-backend/internal/config"
	"sponsor-backend/internal/handlers"
	"sponsor-backend/internal/middleware"
	"sponsor-backend/internal/types"
)

// corsMiddleware origin allow-list from config; empty list means allow all
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	allowCredentials := cfg.AllowCredentials
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 3600
	}

	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
			} else {
				logrus.WithFields(logrus.Fields{
					"request_origin": origin,
					"path":           c.Request.URL.Path,
					"method":         c.Request.Method,
				}).Warn("🚫 CORS: Request blocked, origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter wires all routes. Admin routes are only registered when the TOTP
// secret is configured; the websocket handler is optional.
func SetupRouter(
	cfg *config.Config,
	transferHandler *handlers.TransferHandler,
	proofHandler *handlers.ProofHandler,
	adminAuthHandler *handlers.AdminAuthHandler,
	cacheStatsHandler *handlers.CacheStatsHandler,
	wsHandler *handlers.WebSocketHandler,
	logger *logrus.Logger,
) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware(cfg.CORS))

	// ============ Check ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// ============ Health Check ============
	// Static capability descriptor: what this deployment supports, so clients
	// can discover parameter widths without probing
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "sponsor-backend",
			"network": cfg.Ledger.Network,
			"capabilities": gin.H{
				"token_types": []string{types.TokenTypeNative, types.TokenTypeTokenA, types.TokenTypeTokenB},
				"providers":   []string{types.ProviderRawNonce, types.ProviderHashedNonce},
				"proof_parameter_width_bytes": cfg.Prover.MaxInputWidth,
			},
		})
	})

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ API Routes ============
	api := r.Group("/api")
	{
		transactions := api.Group("/transactions")
		{
			transactions.POST("/build", transferHandler.BuildHandler)
			transactions.POST("/submit", transferHandler.SubmitHandler)
		}

		proof := api.Group("/proof")
		{
			proof.POST("/generate", proofHandler.GenerateHandler)
		}

		if wsHandler != nil {
			api.GET("/ws/transactions/:id", wsHandler.StreamHandler)
		}

		if cfg.Admin.TOTPSecret != "" {
			adminAuth := middleware.NewAdminAuthMiddleware(cfg.Admin.JWTSecret, logger)

			admin := api.Group("/admin")
			{
				admin.POST("/auth/login", adminAuthHandler.LoginHandler)
				admin.GET("/cache/stats", adminAuth.RequireAdmin(), cacheStatsHandler.StatsHandler)
			}
		} else {
			logger.Info("Admin routes disabled: no TOTP secret configured")
		}
	}

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path

		if len(path) >= 4 && path[:4] != "/api" {
			c.JSON(http.StatusNotFound, gin.H{
				"message":    "Endpoint not found",
				"path":       path,
				"suggestion": "Check /api endpoints for available APIs",
			})
			return
		}

		c.JSON(http.StatusNotFound, gin.H{
			"message":    "API endpoint not found",
			"path":       path,
			"suggestion": "Check documentation for available /api endpoints",
		})
	})

	return r
}
