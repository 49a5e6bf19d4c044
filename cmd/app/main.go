package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/kundapp/booking/pkg/config"
	"github.com/kundapp/booking/pkg/dispatch"
	"github.com/kundapp/booking/pkg/dispatch/mailer"
	"github.com/kundapp/booking/pkg/events"
	"github.com/kundapp/booking/pkg/handlers/credits"
	"github.com/kundapp/booking/pkg/handlers/enrollment"
	"github.com/kundapp/booking/pkg/handlers/notifications"
	"github.com/kundapp/booking/pkg/handlers/sessions"
	"github.com/kundapp/booking/pkg/middleware"
	"github.com/kundapp/booking/pkg/saga"
	"github.com/kundapp/booking/pkg/storage"
	boltstore "github.com/kundapp/booking/pkg/storage/bolt"
	dydbstore "github.com/kundapp/booking/pkg/storage/dynamodb"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// AWS Session
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	dbClient := dynamodb.NewFromConfig(awsCfg)
	var store storage.BookingStore = dydbstore.New(dbClient, cfg.AccountsTableName, cfg.SessionsTableName)

	// Notification record store (embedded BoltDB file).
	noteStore, err := boltstore.New(cfg.NotificationsDBPath)
	if err != nil {
		log.Fatalf("failed to open notification store: %v", err)
	}
	defer noteStore.Close()

	var sender mailer.Sender
	if cfg.SMTPMock {
		sender = &mailer.MockSender{Logger: logger}
	} else {
		sender = mailer.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom, nil)
	}

	dispatcher := dispatch.New(
		noteStore,
		sender,
		dispatch.NewRetryPolicy(3, 2*time.Second),
		dispatch.NewCircuitBreaker(dispatch.BreakerConfig{
			FailureThreshold: 5,
			CoolDown:         30 * time.Second,
			HalfOpenProbes:   1,
		}),
		logger,
	)

	// When a queue is configured the saga publishes events for the dispatch
	// worker; otherwise the dispatcher delivers synchronously in-process.
	var notifier saga.Notifier = dispatcher
	if cfg.NotificationQueueURL != "" {
		notifier = events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL)
	}

	coordinator := saga.New(store, store, notifier, logger)

	router := chi.NewRouter()
	router.Use(middleware.NewStructuredLogger(logger))

	credits.NewHandler(store, cfg.InternalSecret).Routes(router)
	sessions.NewHandler(store, cfg.InternalSecret).Routes(router)
	notifications.NewHandler(dispatcher, cfg.InternalSecret).Routes(router)
	enrollment.NewHandler(coordinator).Routes(router)

	log.Printf("Starting server on port %s", cfg.HTTPPort)

	if err := http.ListenAndServe(":"+cfg.HTTPPort, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
