package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/exam-engine/internal/cache"
	"github.com/proctorly/exam-engine/internal/config"
	"github.com/proctorly/exam-engine/internal/handlers"
	"github.com/proctorly/exam-engine/internal/repositories/postgres"
	"github.com/proctorly/exam-engine/internal/runner"
	"github.com/proctorly/exam-engine/internal/services"
	"github.com/proctorly/exam-engine/internal/session"
	"github.com/proctorly/exam-engine/internal/utils"
	"github.com/proctorly/exam-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Exit(1)
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}
	slogger := utils.ToSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := pkg.Migrate(db); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	repo := postgres.NewRepository(db)
	cacheService := cache.NewRedisCache(redisClient, slogger)
	submitLock := cache.NewRedisSubmitLock(redisClient)

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		logger.Error("event publisher setup failed", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// A missing interpreter disables CODE grading but the engine still serves
	// MCQ exams.
	var codeRunner runner.Runner
	if subprocess, err := runner.NewSubprocessRunner(cfg.RunnerCommand, cfg.RunnerTempDir, slogger); err != nil {
		logger.Warn("code runner unavailable", "command", cfg.RunnerCommand, "error", err)
	} else {
		codeRunner = subprocess
		defer subprocess.Close()
	}

	validator := utils.NewValidator()
	gradingService := services.NewGradingService(slogger)
	examService := services.NewExamService(repo, cacheService, slogger, validator)
	submissionService := services.NewSubmissionService(
		repo, gradingService, codeRunner, cfg.RunnerTimeout, submitLock, publisher, slogger, validator)

	sessionManager := session.NewManager(slogger)
	authenticator := handlers.NewAuthenticator(cfg, repo.User(), logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), utils.LoggerMiddleware(logger))

	handlerManager := handlers.NewHandlerManager(
		authenticator, examService, submissionService, sessionManager, publisher, validator, logger)
	handlerManager.SetupRoutes(engine)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		logger.Info("exam engine listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	sessionManager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
