package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/kundapp/booking/pkg/config"
	"github.com/kundapp/booking/pkg/storage"
	dydbstore "github.com/kundapp/booking/pkg/storage/dynamodb"
)

var store storage.RosterStore

func init() {
	// Load environment variables from .env file (useful for local testing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	store = dydbstore.New(dynamodb.NewFromConfig(awsCfg), cfg.AccountsTableName, cfg.SessionsTableName)
}

// HandleRequest marks every scheduled session whose end time has passed as
// completed. Invoked on a timer.
func HandleRequest(ctx context.Context) error {
	updated, err := store.CompleteElapsedSessions(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("ERROR: failed to complete elapsed sessions: %v", err)
		return err
	}

	log.Printf("Marked %d sessions as completed", updated)
	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
