package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage"
)

// GetAccount retrieves a user's credit account from DynamoDB.
func (s *Store) GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account user ID: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.AccountsTableName),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrAccountNotFound
	}

	var account models.CreditAccount
	if err := attributevalue.UnmarshalMap(result.Item, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

// CreateAccount creates a new account record, refusing to overwrite an
// existing one.
func (s *Store) CreateAccount(ctx context.Context, account *models.CreditAccount) (*models.CreditAccount, error) {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	accountAV, err := attributevalue.MarshalMap(account)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.AccountsTableName),
		Item:                accountAV,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"),
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, storage.ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create account in DynamoDB: %w", err)
	}
	return account, nil
}

// Debit atomically decrements the balance. The condition expression makes
// the read-check-write a single row-level operation: two concurrent debits
// can never both observe the same balance and both succeed past it.
func (s *Store) Debit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error) {
	amountAV, err := attributevalue.Marshal(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal debit amount: %w", err)
	}

	result, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.AccountsTableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    aws.String("SET balance = balance - :amount, version = version + :one"),
		ConditionExpression: aws.String("attribute_exists(user_id) AND balance >= :amount"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amount": amountAV,
			":one":    &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, s.classifyDebitFailure(ctx, userID, amount)
		}
		return nil, fmt.Errorf("failed to execute debit: %w", err)
	}

	var account models.CreditAccount
	if err := attributevalue.UnmarshalMap(result.Attributes, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal debited account: %w", err)
	}
	return &models.CreditOperation{
		UserID:          userID,
		PreviousCredits: account.Balance + amount,
		NewCredits:      account.Balance,
	}, nil
}

// classifyDebitFailure re-reads the account to distinguish a missing account
// from an insufficient balance after a failed condition check.
func (s *Store) classifyDebitFailure(ctx context.Context, userID string, amount int64) error {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return storage.ErrAccountNotFound
		}
		return fmt.Errorf("failed to classify debit failure: %w", err)
	}
	return &storage.InsufficientCreditsError{
		UserID:    userID,
		Available: account.Balance,
		Required:  amount,
	}
}

// Credit unconditionally increments the balance.
func (s *Store) Credit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error) {
	amountAV, err := attributevalue.Marshal(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credit amount: %w", err)
	}

	result, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.AccountsTableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    aws.String("SET balance = balance + :amount, version = version + :one"),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amount": amountAV,
			":one":    &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to execute credit: %w", err)
	}

	var account models.CreditAccount
	if err := attributevalue.UnmarshalMap(result.Attributes, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credited account: %w", err)
	}
	return &models.CreditOperation{
		UserID:          userID,
		PreviousCredits: account.Balance - amount,
		NewCredits:      account.Balance,
	}, nil
}
