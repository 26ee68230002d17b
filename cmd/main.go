package main

import (
	"context"
	"fmt"
	"os"
	"time"

	redisclient "github.com/pathwise/pathwise-backend/internal/clients/redis"
	"github.com/pathwise/pathwise-backend/internal/config"
	"github.com/pathwise/pathwise-backend/internal/db"
	"github.com/pathwise/pathwise-backend/internal/handlers"
	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/middleware"
	"github.com/pathwise/pathwise-backend/internal/observability"
	"github.com/pathwise/pathwise-backend/internal/repos"
	"github.com/pathwise/pathwise-backend/internal/server"
	"github.com/pathwise/pathwise-backend/internal/services"
	"github.com/pathwise/pathwise-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing (no-op unless OTEL_ENABLED)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "pathwise-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(ctx)
		}()
	}

	// Engine tunables
	tunables, err := config.LoadTunables(log)
	if err != nil {
		log.Fatal("Failed to load engine tunables", "error", err)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Per-user write serialization; falls back to in-process locking when
	// Redis is not configured.
	serializer, err := redisclient.NewUserSerializer(log)
	if err != nil {
		log.Warn("Redis user serializer unavailable, using in-process locks", "error", err)
		serializer = redisclient.NewLocalSerializer()
	}

	// Repos
	log.Info("Setting up Repos from main...")
	profileRepo := repos.NewLearnerProfileRepo(thePG, log)
	stateRepo := repos.NewRefinementStateRepo(thePG, log)
	lockRepo := repos.NewProfileAttributeLockRepo(thePG, log)
	snapshotRepo := repos.NewProfileSnapshotRepo(thePG, log)
	masteryRepo := repos.NewConceptMasteryRepo(thePG, log)
	mappingRepo := repos.NewContentConceptMappingRepo(thePG, log)
	progressRepo := repos.NewLessonProgressRepo(thePG, log)
	attemptRepo := repos.NewQuestionAttemptRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	refinementService := services.NewRefinementService(thePG, log, tunables, serializer, stateRepo, profileRepo, lockRepo, snapshotRepo)
	profileService := services.NewProfileService(thePG, log, tunables, profileRepo, stateRepo, lockRepo, snapshotRepo)
	masteryService := services.NewMasteryService(thePG, log, tunables, masteryRepo, mappingRepo, progressRepo, attemptRepo)
	telemetryService := services.NewTelemetryService(thePG, log, attemptRepo, refinementService)

	// Handlers
	refinementHandler := handlers.NewRefinementHandler(log, refinementService)
	profileHandler := handlers.NewProfileHandler(log, profileService)
	progressHandler := handlers.NewProgressHandler(log, masteryService, telemetryService)
	identity := middleware.NewIdentityMiddleware(log)

	router := server.NewRouter(server.RouterConfig{
		Identity:          identity,
		RefinementHandler: refinementHandler,
		ProfileHandler:    profileHandler,
		ProgressHandler:   progressHandler,
		TracingEnabled:    otelShutdown != nil,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
