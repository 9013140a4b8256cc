package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"campus_quest_engine/internal/api"
	"campus_quest_engine/internal/collaborators"
	"campus_quest_engine/internal/events"
	"campus_quest_engine/internal/jobs"
	"campus_quest_engine/internal/repository"
	"campus_quest_engine/internal/service"
	"campus_quest_engine/pkg/auth"
	"campus_quest_engine/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		zapLogger.Fatal("Failed to load engine timezone", zap.Error(err))
	}

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := events.NewPublisher(cfg.Events)
	defer publisher.Close()

	interactionLogger := service.NewInteractionLogger(repo, publisher, loc)
	interactionLogger.Start(ctx)
	defer interactionLogger.Stop()

	collab := service.Collaborators{
		Steps:      collaborators.NewStepClient(cfg.Collaborators.StepsURL),
		Payments:   collaborators.NewPaymentClient(cfg.Collaborators.PaymentsURL),
		Attendance: collaborators.NewAttendanceClient(cfg.Collaborators.AttendanceURL),
	}
	ledger := collaborators.NewLedgerClient(cfg.Collaborators.LedgerURL)

	rewards := service.NewRewardDispatcher(ledger)
	attemptService := service.NewAttemptService(repo, repo, rewards, collab, interactionLogger, loc)

	scheduler := jobs.NewScheduler(repo, loc)
	if err := scheduler.Start(); err != nil {
		zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	jwtAuth := auth.NewJWTAuth(cfg.Auth.JWTSecret)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}
	corsConfig.AllowHeaders = []string{"*"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour

	router.Use(cors.New(corsConfig))

	a := router.Group("/api/v1")
	api.NewQuestRoutes(a, attemptService, jwtAuth)
	api.NewInteractionRoutes(a, interactionLogger, jwtAuth)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: router}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("Starting server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zapLogger.Fatal("Server error", zap.Error(err))
	}
}
