package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assessment *handler.AssessmentHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// submitLimiter bounds judged submissions per invitation token.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	submitLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// WebSocket upgrades are skipped by the middleware itself.
	router.Use(middleware.Brotli())

	// Liveness.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 0. System Group (No Auth) ─────────────────────────────────────
	if handlers.System != nil {
		router.GET("/api/v1/system/health", handlers.System.Health)
	}

	// ─── 1. Assessment Group (Candidate JWT) ───────────────────────────
	assessments := router.Group("/api/v1/assessments/:token")
	assessments.Use(
		middleware.RequireCandidateJWT(authService),
		middleware.NoStore(),
	)
	{
		assessments.POST("/start", handlers.Assessment.Start)
		assessments.GET("/state", handlers.Assessment.GetState)
		assessments.PATCH("/progress", handlers.Assessment.ReportProgress)
		assessments.POST("/violations", handlers.Assessment.ReportViolation)
		assessments.POST("/submissions",
			submitLimiter.Middleware(middleware.ByParam("token")),
			handlers.Assessment.SubmitCode,
		)
		assessments.POST("/complete", handlers.Assessment.Complete)
	}

	// ─── 2. WebSocket Group (JWT via ?access_token=) ───────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateJWT(authService))
	{
		ws.GET("/assessments/:token/stream", handlers.WS.AssessmentStream)
	}

	return router
}
