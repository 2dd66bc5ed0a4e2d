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
	"github.com/rs/zerolog"

	"github.com/noah-isme/eyeai-api/internal/config"
	"github.com/noah-isme/eyeai-api/internal/database"
	"github.com/noah-isme/eyeai-api/internal/handler"
	"github.com/noah-isme/eyeai-api/internal/middleware"
	"github.com/noah-isme/eyeai-api/internal/models"
	"github.com/noah-isme/eyeai-api/internal/registry"
	"github.com/noah-isme/eyeai-api/internal/repository"
	"github.com/noah-isme/eyeai-api/internal/router"
	"github.com/noah-isme/eyeai-api/internal/service"
	cloud "github.com/noah-isme/eyeai-api/pkg/cloudinary"
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

	if err := db.AutoMigrate(&models.Session{}, &models.FileUpload{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	realtimeCtx, stopRealtime := context.WithCancel(context.Background())
	defer stopRealtime()

	realtimeService := service.NewRealtimeService(redisClient, natsConn, "eyeai", logger)
	realtimeService.Start(realtimeCtx)

	sessionRepo := repository.NewSessionRepository(db)
	sessionRegistry := registry.NewRedisRegistry(redisClient, logger)

	sessionService := service.NewSessionService(sessionRepo, sessionRegistry, realtimeService, redisClient, validate, logger, service.SessionOptions{
		MutationTimeout:     cfg.MutationTimeout,
		MaxSaveAttempts:     cfg.MaxSaveAttempts,
		MaxAttentionRecords: cfg.MaxAttentionRecords,
		MaxGraphSamples:     cfg.MaxGraphSamples,
		SummaryCacheTTL:     cfg.SummaryCacheTTL,
	})

	sessionHandler := handler.NewSessionHandler(sessionService, logger)
	studentHandler := handler.NewStudentHandler(sessionService, logger)
	realtimeHandler := handler.NewRealtimeHandler(realtimeService, logger)

	var fileHandler *handler.FileHandler
	if cfg.UploadsEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}

		uploadRepo := repository.NewUploadRepository(db)
		uploadService := service.NewUploadService(uploader, uploadRepo, realtimeService, validate, cfg.UploadMaxSizeMB, logger)
		fileHandler = handler.NewFileHandler(uploadService, logger)
	} else {
		logger.Warn().Msg("cloudinary credentials missing, file sharing disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SessionHandler:  sessionHandler,
		StudentHandler:  studentHandler,
		RealtimeHandler: realtimeHandler,
		FileHandler:     fileHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
