package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linguahub-api/internal/config"
	"github.com/noah-isme/linguahub-api/internal/database"
	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/handler"
	"github.com/noah-isme/linguahub-api/internal/middleware"
	"github.com/noah-isme/linguahub-api/internal/models"
	"github.com/noah-isme/linguahub-api/internal/repository"
	"github.com/noah-isme/linguahub-api/internal/router"
	"github.com/noah-isme/linguahub-api/internal/service"
	"github.com/noah-isme/linguahub-api/pkg/ai"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	logger = logger.With().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Participant{},
		&models.Message{},
		&models.ReadReceipt{},
		&models.Notification{},
		&models.StudyGuide{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connections := database.NewManager(database.ManagerConfig{
		Name:       cfg.AppName,
		RedisURL:   cfg.RedisURL,
		NATSURL:    cfg.NATSURL,
		MaxRetries: cfg.ConnectionMaxRetries,
		RetryWait:  cfg.ConnectionRetryWait,
	}, logger)
	if err := connections.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise broker connections")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	chatRepo := repository.NewChatRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	studyGuideRepo := repository.NewStudyGuideRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, connections.Redis(), connections.NATS(), cfg.ChatChannel, validate, logger)
	realtimeService := service.NewRealtimeService(connections.Redis(), connections.NATS(), cfg.ChatChannel, validate, logger)
	membershipService := service.NewMembershipService(chatRepo, realtimeService, notificationService, validate, logger)
	messageService := service.NewMessageService(chatRepo, realtimeService, notificationService, cfg.ChatHistoryLimit, validate, logger)

	realtimeService.HandleInbound(func(ctx context.Context, userID uint, frame dto.ChatInbound) error {
		switch frame.Action {
		case "delivered":
			_, err := messageService.MarkDelivered(ctx, frame.MessageID, userID)
			return err
		case "read":
			_, err := messageService.MarkRead(ctx, frame.MessageID, userID)
			return err
		default:
			return fmt.Errorf("%w: unsupported action %q", service.ErrValidation, frame.Action)
		}
	})

	var generator ai.StudyGuideGenerator
	if cfg.AIProvider == "openai" && cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create study guide generator")
		}
		generator = openAI
	} else {
		logger.Warn().Str("provider", cfg.AIProvider).Msg("study guide generator disabled")
	}
	studyGuideService := service.NewStudyGuideService(studyGuideRepo, generator, connections.Redis(), cfg.ChatChannel, cfg.StudyGuideCacheTTL, validate, logger)

	notificationService.Start(ctx)
	realtimeService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		RoomHandler:         handler.NewRoomHandler(membershipService, logger),
		MessageHandler:      handler.NewMessageHandler(messageService, logger),
		ChatHandler:         handler.NewChatHandler(realtimeService, membershipService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.NotificationsKeepAlive),
		StudyGuideHandler:   handler.NewStudyGuideHandler(studyGuideService, logger),
		Connections:         connections,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, connections, cfg.ShutdownTimeout, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, connections *database.Manager, timeout time.Duration, logger zerolog.Logger) {
	<-ctx.Done()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := connections.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close broker connections")
	}

	logger.Info().Msg("server stopped")
}
