package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/config"
	"github.com/servineo/servineo-api/internal/database"
	"github.com/servineo/servineo-api/internal/handler"
	"github.com/servineo/servineo-api/internal/middleware"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/realtime"
	"github.com/servineo/servineo-api/internal/repository"
	"github.com/servineo/servineo-api/internal/router"
	"github.com/servineo/servineo-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Professional{},
		&models.Moderator{},
		&models.Conversation{},
		&models.Message{},
		&models.SupportChat{},
		&models.SupportMessage{},
		&models.Report{},
		&models.Notification{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, archive store and cross-node bridge disabled")
	}

	var natsConn *nats.Conn
	if cfg.NatsURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NatsURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	userRepo := repository.NewUserRepository(db)
	moderatorRepo := repository.NewModeratorRepository(db)
	supportRepo := repository.NewSupportChatRepository(db)
	reportRepo := repository.NewReportRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var archiveRepo repository.ArchiveRepository
	if redisClient != nil {
		archiveRepo = repository.NewArchiveRepository(redisClient, cfg.ArchiveTTL)
	}

	conversationService := service.NewConversationService(conversationRepo, messageRepo, userRepo, reportRepo, validate, logger)
	supportService := service.NewSupportService(supportRepo, moderatorRepo, archiveRepo, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, validate, logger)
	reportService := service.NewReportService(reportRepo, validate, logger)

	registry := realtime.NewRegistry(logger)
	dispatcher := realtime.NewDispatcher(registry, conversationService, supportService, notificationService, redisClient, cfg.EventChannelBase, natsConn, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(runCtx)

	conversationHandler := handler.NewConversationHandler(conversationService, dispatcher, logger)
	supportHandler := handler.NewSupportHandler(supportService, dispatcher, logger)
	moderatorHandler := handler.NewModeratorHandler(supportService, dispatcher, logger)
	adminHandler := handler.NewAdminHandler(supportService, reportService, dispatcher, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger)
	realtimeHandler := handler.NewRealtimeHandler(dispatcher, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ConversationHandler: conversationHandler,
		SupportHandler:      supportHandler,
		ModeratorHandler:    moderatorHandler,
		AdminHandler:        adminHandler,
		NotificationHandler: notificationHandler,
		RealtimeHandler:     realtimeHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancel)
}

func waitForShutdown(app *fiber.App, cancel context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
