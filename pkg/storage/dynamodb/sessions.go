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

// GetSession retrieves a session from DynamoDB by its ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session ID: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.SessionsTableName),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrSessionNotFound
	}

	var session models.Session
	if err := attributevalue.UnmarshalMap(result.Item, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// CreateSession creates a new session record in SCHEDULED state.
func (s *Store) CreateSession(ctx context.Context, session *models.Session) (*models.Session, error) {
	now := time.Now()
	session.Status = models.SCHEDULED
	session.CreatedAt = now
	session.UpdatedAt = now

	sessionAV, err := attributevalue.MarshalMap(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.SessionsTableName),
		Item:                sessionAV,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session in DynamoDB: %w", err)
	}
	return session, nil
}

// AddParticipant appends the user to the roster in a single conditional
// update. Status, capacity and membership are all checked in the condition
// expression, so the check and the append cannot interleave with another
// writer on the same session row.
func (s *Store) AddParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error) {
	nowAV, err := attributevalue.Marshal(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	result, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.SessionsTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: sessionID},
		},
		UpdateExpression: aws.String("ADD participant_ids :uidset SET updated_at = :now"),
		ConditionExpression: aws.String(
			"attribute_exists(id) AND #status = :scheduled" +
				" AND (attribute_not_exists(participant_ids) OR size(participant_ids) < #capacity)" +
				" AND (attribute_not_exists(participant_ids) OR NOT contains(participant_ids, :uid))"),
		ExpressionAttributeNames: map[string]string{
			"#status":   "status",
			"#capacity": "capacity",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uidset":    &types.AttributeValueMemberSS{Value: []string{userID}},
			":uid":       &types.AttributeValueMemberS{Value: userID},
			":scheduled": &types.AttributeValueMemberS{Value: string(models.SCHEDULED)},
			":now":       nowAV,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, s.classifyAddFailure(ctx, sessionID, userID)
		}
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	return unmarshalSnapshot(result.Attributes)
}

// classifyAddFailure re-reads the session to turn a failed condition check
// into the specific business error.
func (s *Store) classifyAddFailure(ctx context.Context, sessionID, userID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return storage.ErrSessionNotFound
		}
		return fmt.Errorf("failed to classify add-participant failure: %w", err)
	}
	if session.Status != models.SCHEDULED {
		return &storage.InvalidSessionStateError{SessionID: sessionID, Status: string(session.Status)}
	}
	if session.HasParticipant(userID) {
		return storage.ErrUserAlreadyRegistered
	}
	return &storage.SessionFullError{
		SessionID: sessionID,
		Current:   len(session.ParticipantIDs),
		Max:       session.Capacity,
	}
}

// RemoveParticipant removes the user from the roster. The cancellation
// deadline is validated against the fetched start time before the
// conditional delete; membership and status are re-checked in the condition
// so a concurrent removal cannot double-apply.
func (s *Store) RemoveParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SCHEDULED {
		return nil, &storage.InvalidSessionStateError{SessionID: sessionID, Status: string(session.Status)}
	}
	now := time.Now()
	if cutoff := session.CancellationDeadline(); !now.Before(cutoff) {
		return nil, &storage.CancellationDeadlineError{SessionID: sessionID, Cutoff: cutoff, Now: now}
	}
	if !session.HasParticipant(userID) {
		return nil, storage.ErrUserNotRegistered
	}

	nowAV, err := attributevalue.Marshal(now)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	result, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.SessionsTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: sessionID},
		},
		UpdateExpression: aws.String("DELETE participant_ids :uidset SET updated_at = :now"),
		ConditionExpression: aws.String(
			"#status = :scheduled AND contains(participant_ids, :uid)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uidset":    &types.AttributeValueMemberSS{Value: []string{userID}},
			":uid":       &types.AttributeValueMemberS{Value: userID},
			":scheduled": &types.AttributeValueMemberS{Value: string(models.SCHEDULED)},
			":now":       nowAV,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			// Lost a race with a concurrent removal or cancellation.
			return nil, storage.ErrUserNotRegistered
		}
		return nil, fmt.Errorf("failed to remove participant: %w", err)
	}

	return unmarshalSnapshot(result.Attributes)
}

// CancelSession transitions a SCHEDULED session to CANCELLED.
func (s *Store) CancelSession(ctx context.Context, sessionID string) (*models.Session, error) {
	nowAV, err := attributevalue.Marshal(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	result, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.SessionsTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: sessionID},
		},
		UpdateExpression:    aws.String("SET #status = :cancelled, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id) AND #status = :scheduled"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cancelled": &types.AttributeValueMemberS{Value: string(models.CANCELLED)},
			":scheduled": &types.AttributeValueMemberS{Value: string(models.SCHEDULED)},
			":now":       nowAV,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, s.classifyCancelFailure(ctx, sessionID)
		}
		return nil, fmt.Errorf("failed to cancel session: %w", err)
	}

	var session models.Session
	if err := attributevalue.UnmarshalMap(result.Attributes, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cancelled session: %w", err)
	}
	return &session, nil
}

func (s *Store) classifyCancelFailure(ctx context.Context, sessionID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return storage.ErrSessionNotFound
		}
		return fmt.Errorf("failed to classify cancel failure: %w", err)
	}
	return &storage.InvalidSessionStateError{SessionID: sessionID, Status: string(session.Status)}
}

// CompleteElapsedSessions scans for SCHEDULED sessions whose end time has
// passed and marks each COMPLETED. The per-item condition keeps the sweep
// safe to run from overlapping schedules.
func (s *Store) CompleteElapsedSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.Client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.SessionsTableName),
		FilterExpression: aws.String("#status = :scheduled"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scheduled": &types.AttributeValueMemberS{Value: string(models.SCHEDULED)},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan sessions table: %w", err)
	}

	var sessions []models.Session
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &sessions); err != nil {
		return 0, fmt.Errorf("failed to unmarshal sessions: %w", err)
	}

	nowAV, err := attributevalue.Marshal(now)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	completed := 0
	for _, session := range sessions {
		if !session.EndTime().Before(now) {
			continue
		}
		_, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.SessionsTableName),
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: session.ID},
			},
			UpdateExpression:    aws.String("SET #status = :completed, updated_at = :now"),
			ConditionExpression: aws.String("#status = :scheduled"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":completed": &types.AttributeValueMemberS{Value: string(models.COMPLETED)},
				":scheduled": &types.AttributeValueMemberS{Value: string(models.SCHEDULED)},
				":now":       nowAV,
			},
		})
		if err != nil {
			var condCheckFailed *types.ConditionalCheckFailedException
			if errors.As(err, &condCheckFailed) {
				// Another sweep or a cancellation got there first.
				continue
			}
			return completed, fmt.Errorf("failed to complete session %s: %w", session.ID, err)
		}
		completed++
	}
	return completed, nil
}

func unmarshalSnapshot(attributes map[string]types.AttributeValue) (*models.RosterSnapshot, error) {
	var session models.Session
	if err := attributevalue.UnmarshalMap(attributes, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster snapshot: %w", err)
	}
	return &models.RosterSnapshot{
		SessionID:        session.ID,
		ParticipantCount: len(session.ParticipantIDs),
		AvailableSpots:   session.Capacity - len(session.ParticipantIDs),
		ParticipantIDs:   session.ParticipantIDs,
	}, nil
}
