package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/kundapp/booking/pkg/storage"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
// Depending on this interface instead of *dynamodb.Client lets tests swap in
// a mock client.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements the ledger and roster interfaces using AWS DynamoDB.
// Both concurrency guards required by the booking flow are condition
// expressions: the debit conditions on the current balance, the roster
// append conditions on set size and membership. DynamoDB evaluates the
// condition and the write atomically per item, so concurrent requests
// against the same account or session serialize at the row.
type Store struct {
	Client            DynamoDBAPI
	AccountsTableName string
	SessionsTableName string
}

// New creates a new Store.
func New(client DynamoDBAPI, accountsTable, sessionsTable string) *Store {
	return &Store{
		Client:            client,
		AccountsTableName: accountsTable,
		SessionsTableName: sessionsTable,
	}
}

// Make sure we conform to the interfaces
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.RosterStore = (*Store)(nil)
