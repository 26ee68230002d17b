package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/pathwise/pathwise-backend/internal/handlers"
	"github.com/pathwise/pathwise-backend/internal/middleware"
)

type RouterConfig struct {
	Identity          *middleware.IdentityMiddleware
	RefinementHandler *handlers.RefinementHandler
	ProfileHandler    *handlers.ProfileHandler
	ProgressHandler   *handlers.ProgressHandler
	TracingEnabled    bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware("pathwise-backend"))
	}

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.Identity.RequireUser())
	{
		// Profile
		api.GET("/profile/effective", cfg.ProfileHandler.GetEffectiveProfile)
		api.PUT("/profile", cfg.ProfileHandler.UpsertProfile)
		// Refinement
		api.POST("/refinement/signal", cfg.RefinementHandler.ProcessSignal)
		api.POST("/refinement/settings", cfg.RefinementHandler.UpdateSettings)
		// Progress & telemetry
		api.POST("/progress/lesson-completion", cfg.ProgressHandler.RecordLessonCompletion)
		api.POST("/telemetry/question-attempt", cfg.ProgressHandler.RecordQuestionAttempt)
		api.GET("/review/due", cfg.ProgressHandler.GetDueConcepts)
		// Operational
		api.POST("/admin/mastery-decay", cfg.ProgressHandler.ApplyMasteryDecay)
	}

	return router
}
