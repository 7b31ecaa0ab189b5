package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/config"
	"github.com/kha86lilo/quotescan/internal/database"
	"github.com/kha86lilo/quotescan/internal/handlers"
	"github.com/kha86lilo/quotescan/internal/middleware"
	"github.com/kha86lilo/quotescan/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	svcs, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	app.handlers = handlers.New(app.logger, svcs)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Services() *services.Services {
	return a.services
}

func (a *App) Logger() *logrus.Logger {
	return a.logger
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if err := a.services.MessageBus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing message bus")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Compression())
	router.Use(middleware.Metrics(a.services.Metrics))

	// Liveness and metrics stay open
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Token exchange sits outside the guarded group
	router.POST("/api/v1/auth/token", a.handlers.Auth.IssueToken)

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		if a.config.Security.RateLimit.Enabled {
			api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))
		}

		write := middleware.RequireScope("write", a.logger)

		matches := api.Group("/matches")
		{
			matches.POST("/batch", write, a.handlers.Match.BatchMatch)
			matches.POST("/:id/feedback", write, a.handlers.Feedback.Submit)
		}

		quotes := api.Group("/quotes")
		{
			quotes.POST("/:id/rematch", write, a.handlers.Match.Rematch)
			quotes.GET("/:id/matches", a.handlers.Match.GetMatches)
			quotes.POST("/:id/outcome", write, a.handlers.Feedback.RecordOutcome)
		}

		api.GET("/feedback/statistics", a.handlers.Feedback.Statistics)

		jobs := api.Group("/jobs")
		{
			jobs.GET("/:id", a.handlers.Job.Get)
			jobs.DELETE("/:id", write, a.handlers.Job.Cancel)
		}

		weights := api.Group("/weights")
		{
			weights.GET("", a.handlers.Weight.GetActive)
			weights.GET("/versions", a.handlers.Weight.ListVersions)
		}
	}

	a.router = router
}
