package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openlingo/openlingo-backend/internal/db"
	"github.com/openlingo/openlingo-backend/internal/handlers"
	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/middleware"
	"github.com/openlingo/openlingo-backend/internal/repos"
	"github.com/openlingo/openlingo-backend/internal/server"
	"github.com/openlingo/openlingo-backend/internal/services"
	"github.com/openlingo/openlingo-backend/internal/sse"
	"github.com/openlingo/openlingo-backend/internal/utils"
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

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	activityRepo := repos.NewActivityRepo(thePG, log)
	activityItemRepo := repos.NewActivityItemRepo(thePG, log)
	recordingProgressRepo := repos.NewRecordingProgressRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewSSEHub(log)
	var sseBus services.SSEBus
	if os.Getenv("REDIS_ADDR") != "" {
		sseBus, err = services.NewRedisSSEBus(log)
		if err != nil {
			log.Warn("Could not init redis SSE bus, falling back to local hub", "error", err)
			sseBus = nil
		} else {
			if err := sseBus.StartForwarder(context.Background(), func(m sse.SSEMessage) {
				sseHub.Broadcast(m)
			}); err != nil {
				log.Warn("Could not start redis SSE forwarder", "error", err)
			}
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	speechAssessService, err := services.NewSpeechAssessService(log, bucketService)
	if err != nil {
		log.Error("Could not init SpeechAssessService", "error", err)
		os.Exit(1)
	}
	recordingService := services.NewRecordingService(log, thePG, bucketService, recordingProgressRepo, activityItemRepo)
	authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	activityService := services.NewActivityService(log, thePG, activityRepo, activityItemRepo, recordingService, speechAssessService, sseHub, sseBus)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	activityHandler := handlers.NewActivityHandler(activityService)
	recordingHandler := handlers.NewRecordingHandler(recordingService)
	speechHandler := handlers.NewSpeechHandler(speechAssessService)
	eventsHandler := handlers.NewEventsHandler(sseHub)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:      authHandler,
		AuthMiddleware:   authMiddleware,
		ActivityHandler:  activityHandler,
		RecordingHandler: recordingHandler,
		SpeechHandler:    speechHandler,
		EventsHandler:    eventsHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}

	activityService.WaitAll()
	if sseBus != nil {
		_ = sseBus.Close()
	}
	_ = speechAssessService.Close()
}
