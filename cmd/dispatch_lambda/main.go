package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/kundapp/booking/pkg/config"
	"github.com/kundapp/booking/pkg/dispatch"
	"github.com/kundapp/booking/pkg/dispatch/mailer"
	"github.com/kundapp/booking/pkg/models"
	boltstore "github.com/kundapp/booking/pkg/storage/bolt"
)

var dispatcher *dispatch.Dispatcher

func init() {
	// Load environment variables from .env file (useful for local testing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Bolt locks its file to one process: this worker is the sole writer,
	// and the path must live on persistent storage so records survive
	// cold starts.
	store, err := boltstore.New(cfg.NotificationsDBPath)
	if err != nil {
		log.Fatalf("failed to open notification store: %v", err)
	}

	var sender mailer.Sender
	if cfg.SMTPMock {
		sender = &mailer.MockSender{Logger: logger}
	} else {
		sender = mailer.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom, nil)
	}

	dispatcher = dispatch.New(
		store,
		sender,
		dispatch.NewRetryPolicy(3, 2*time.Second),
		dispatch.NewCircuitBreaker(dispatch.BreakerConfig{
			FailureThreshold: 5,
			CoolDown:         30 * time.Second,
			HalfOpenProbes:   1,
		}),
		logger,
	)
}

// HandleRequest consumes notification events from the queue and drives the
// dispatcher. A persistence failure returns an error so the queue redrives
// the message; a delivery failure settles the record as FAILED and is not
// retried at the queue level.
func HandleRequest(ctx context.Context, sqsEvent lambdaevents.SQSEvent) error {
	for _, message := range sqsEvent.Records {
		log.Printf("Processing message %s", message.MessageId)

		var event models.NotificationEvent
		if err := json.Unmarshal([]byte(message.Body), &event); err != nil {
			log.Printf("ERROR: failed to unmarshal notification event from SQS message %s: %v", message.MessageId, err)
			return err
		}

		record, err := dispatcher.Notify(ctx, event)
		if err != nil {
			log.Printf("ERROR: failed to process notification event from message %s: %v", message.MessageId, err)
			return err
		}

		log.Printf("Processed notification %s with status %s", record.ID, record.Status)
	}

	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
