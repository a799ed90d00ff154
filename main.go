package main

import (
	"log"
	"time"

	"leadpulse/config"
	"leadpulse/middleware"
	"leadpulse/routes"
	"leadpulse/store"
	"leadpulse/utils"
	"leadpulse/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			log.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection (runs migrations)
	if err := config.ConnectDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	engineStore := store.New(config.DB)

	// Email transport shared by step dispatch and owner notifications
	sender := utils.NewSMTPSender(
		config.AppConfig.SMTP.Host,
		config.AppConfig.SMTP.Port,
		config.AppConfig.SMTP.Username,
		config.AppConfig.SMTP.Password,
		config.AppConfig.SMTP.From,
	)

	// Assemble the engine: detector -> step executor -> workflow executor,
	// driven by the cron scheduler, reporting through the notification port.
	detector := worker.NewDetector(engineStore)
	stepExecutor := worker.NewStepExecutor(engineStore, sender, config.AppConfig.TrackingBaseURL)
	executor := worker.NewWorkflowExecutor(detector, stepExecutor)
	notifier := worker.NewNotificationDispatcher(worker.NewEmailNotifier(sender), engineStore)
	scheduler := worker.NewScheduler(
		engineStore,
		executor,
		notifier,
		time.Duration(config.AppConfig.RunTimeoutMinutes)*time.Minute,
	)

	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, engineStore, scheduler)

	log.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
