package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/handler"
	"github.com/stemsi/wellcheck-backend/internal/middleware"
	"github.com/stemsi/wellcheck-backend/internal/response"
	"github.com/stemsi/wellcheck-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Session       *handler.SessionHandler
	Instrument    *handler.InstrumentHandler
	Analytics     *handler.AnalyticsHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// rdb may be nil, in which case save endpoints are rate limited in memory.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	rdb *redis.Client,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Progress and submit writes, per student.
	var saveLimit gin.HandlerFunc
	if rdb != nil {
		saveLimit = middleware.NewRedisRateLimiter(rdb, cfg.SaveRateLimit, time.Minute, middleware.ByStudent, log).Middleware()
	} else {
		saveLimit = middleware.NewRateLimiter(cfg.SaveRateLimit, time.Minute, middleware.ByStudent).Middleware()
	}

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/instruments", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/instruments/:instrument_id/attempt", handlers.StudentPortal.BeginAttempt)
		studentAPI.POST("/instruments/:instrument_id/progress", saveLimit, handlers.StudentPortal.SaveProgress)
		studentAPI.POST("/instruments/:instrument_id/submit", saveLimit, handlers.StudentPortal.SubmitAttempt)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/instruments/:instrument_id/session", handlers.Session.SessionStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Instrument management
		adminAPI.GET("/instruments",
			middleware.RequirePermission(service.PermissionInstrumentsRead),
			handlers.Instrument.ListInstruments,
		)
		adminAPI.GET("/instruments/:id",
			middleware.RequirePermission(service.PermissionInstrumentsRead),
			handlers.Instrument.GetInstrument,
		)
		adminAPI.POST("/instruments",
			middleware.RequirePermission(service.PermissionInstrumentsWrite),
			handlers.Instrument.CreateInstrument,
		)
		adminAPI.PUT("/instruments/:id",
			middleware.RequirePermission(service.PermissionInstrumentsWrite),
			handlers.Instrument.UpdateInstrument,
		)
		adminAPI.POST("/instruments/:id/refresh-cache",
			middleware.RequirePermission(service.PermissionInstrumentsWrite),
			handlers.Instrument.RefreshCache,
		)

		// Analytics
		adminAPI.GET("/analytics",
			middleware.RequirePermission(service.PermissionAnalyticsRead),
			handlers.Analytics.GetAnalytics,
		)
		adminAPI.GET("/students/:id/submissions",
			middleware.RequirePermission(service.PermissionStudentsRead),
			handlers.Analytics.GetStudentSubmissions,
		)
	}

	return router
}
