package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/openlingo/openlingo-backend/internal/handlers"
	"github.com/openlingo/openlingo-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler      *handlers.AuthHandler
	AuthMiddleware   *middleware.AuthMiddleware
	ActivityHandler  *handlers.ActivityHandler
	RecordingHandler *handlers.RecordingHandler
	SpeechHandler    *handlers.SpeechHandler
	EventsHandler    *handlers.EventsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Auth
	protected.POST("/refresh", cfg.AuthHandler.Refresh)
	protected.POST("/logout", cfg.AuthHandler.Logout)

	api := protected.Group("/api")
	// Events
	api.GET("/events", cfg.EventsHandler.Stream)
	// Storage and assessment endpoints
	api.POST("/recordings", cfg.RecordingHandler.Upload)
	api.POST("/speech/assess", cfg.SpeechHandler.Assess)
	// Per-assignment recording pipeline
	assignment := api.Group("/assignments/:assignmentID")
	assignment.GET("/items", cfg.ActivityHandler.ListItems)
	assignment.GET("/progress", cfg.ActivityHandler.Progress)
	assignment.POST("/submit", cfg.ActivityHandler.Submit)
	assignment.POST("/items/:itemID/recording/start", cfg.ActivityHandler.StartRecording)
	assignment.POST("/items/:itemID/recording/stop", cfg.ActivityHandler.StopRecording)
	assignment.DELETE("/items/:itemID/recording", cfg.ActivityHandler.DeleteRecording)
	assignment.POST("/items/:itemID/analysis", cfg.ActivityHandler.Analyze)

	return router
}
