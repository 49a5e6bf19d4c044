package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestGetAccount(t *testing.T) {
	account := &models.CreditAccount{UserID: "user-1", Balance: 10, Version: 1}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		accountAV, _ := attributevalue.MarshalMap(account)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: accountAV}, nil)

		store := New(mockClient, "accounts", "sessions")
		retrieved, err := store.GetAccount(context.Background(), "user-1")

		assert.NoError(t, err)
		assert.Equal(t, int64(10), retrieved.Balance)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nil}, nil)

		store := New(mockClient, "accounts", "sessions")
		_, err := store.GetAccount(context.Background(), "user-1")

		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		mockClient.AssertExpectations(t)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		store := New(mockClient, "accounts", "sessions")
		_, err := store.GetAccount(context.Background(), "user-1")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get account from DynamoDB")
		mockClient.AssertExpectations(t)
	})
}

func TestCreateAccount(t *testing.T) {
	account := &models.CreditAccount{UserID: "user-1", Balance: 10}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil)

		store := New(mockClient, "accounts", "sessions")
		created, err := store.CreateAccount(context.Background(), account)

		assert.NoError(t, err)
		assert.Equal(t, "user-1", created.UserID)
		mockClient.AssertExpectations(t)
	})

	t.Run("Conflict", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		store := New(mockClient, "accounts", "sessions")
		_, err := store.CreateAccount(context.Background(), account)

		assert.ErrorIs(t, err, storage.ErrAccountExists)
		mockClient.AssertExpectations(t)
	})
}

func TestDebit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		debited, _ := attributevalue.MarshalMap(&models.CreditAccount{UserID: "user-1", Balance: 8, Version: 2})
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(&dynamodb.UpdateItemOutput{Attributes: debited}, nil)

		store := New(mockClient, "accounts", "sessions")
		op, err := store.Debit(context.Background(), "user-1", 2)

		assert.NoError(t, err)
		assert.Equal(t, int64(10), op.PreviousCredits)
		assert.Equal(t, int64(8), op.NewCredits)
		mockClient.AssertExpectations(t)
	})

	t.Run("Insufficient Credits", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})
		// The classification re-read finds the account with too little balance.
		poor, _ := attributevalue.MarshalMap(&models.CreditAccount{UserID: "user-1", Balance: 1})
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: poor}, nil)

		store := New(mockClient, "accounts", "sessions")
		_, err := store.Debit(context.Background(), "user-1", 2)

		var insufficient *storage.InsufficientCreditsError
		assert.ErrorAs(t, err, &insufficient)
		assert.Equal(t, int64(1), insufficient.Available)
		assert.Equal(t, int64(2), insufficient.Required)
		mockClient.AssertExpectations(t)
	})

	t.Run("Unknown Account", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nil}, nil)

		store := New(mockClient, "accounts", "sessions")
		_, err := store.Debit(context.Background(), "ghost", 2)

		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		mockClient.AssertExpectations(t)
	})
}

func TestCredit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		credited, _ := attributevalue.MarshalMap(&models.CreditAccount{UserID: "user-1", Balance: 10, Version: 3})
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(&dynamodb.UpdateItemOutput{Attributes: credited}, nil)

		store := New(mockClient, "accounts", "sessions")
		op, err := store.Credit(context.Background(), "user-1", 2)

		assert.NoError(t, err)
		assert.Equal(t, int64(8), op.PreviousCredits)
		assert.Equal(t, int64(10), op.NewCredits)
		mockClient.AssertExpectations(t)
	})

	t.Run("Unknown Account", func(t *testing.T) {
		mockClient := new(mockDynamoDBAPI)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		store := New(mockClient, "accounts", "sessions")
		_, err := store.Credit(context.Background(), "ghost", 2)

		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		mockClient.AssertExpectations(t)
	})
}
