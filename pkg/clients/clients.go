// Package clients provides HTTP implementations of the saga coordinator's
// collaborator interfaces, for deployments where the ledger, roster and
// notification services run as separate processes. Error bodies are mapped
// back to the same typed errors the in-process stores return, so the
// coordinator's compensation branching is identical either way.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kundapp/booking/pkg/api"
	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/saga"
	"github.com/kundapp/booking/pkg/storage"
)

const defaultTimeout = 10 * time.Second

// Client carries the shared plumbing of the per-service clients. notFound
// is the sentinel a 404 from this service maps back to.
type Client struct {
	baseURL        string
	internalSecret string
	httpClient     *http.Client
	notFound       error
}

// New creates a Client for the service at baseURL.
func New(baseURL, internalSecret string, notFound error) *Client {
	return &Client{
		baseURL:        baseURL,
		internalSecret: internalSecret,
		httpClient:     &http.Client{Timeout: defaultTimeout},
		notFound:       notFound,
	}
}

// LedgerClient implements saga.Ledger over the credit service API.
type LedgerClient struct {
	*Client
}

// NewLedgerClient creates a LedgerClient.
func NewLedgerClient(baseURL, internalSecret string) *LedgerClient {
	return &LedgerClient{Client: New(baseURL, internalSecret, storage.ErrAccountNotFound)}
}

var _ saga.Ledger = (*LedgerClient)(nil)

// GetAccount fetches the credit account for a user.
func (c *LedgerClient) GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := c.do(ctx, http.MethodGet, "/credits/"+url.PathEscape(userID), nil, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Debit deducts credits from the user's account.
func (c *LedgerClient) Debit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error) {
	req := api.DeductCreditsRequest{
		UserID:          userID,
		CreditsRequired: amount,
		InternalSecret:  c.internalSecret,
	}
	var resp api.CreditOperationResponse
	if err := c.do(ctx, http.MethodPost, "/credits/deduct", req, &resp); err != nil {
		return nil, err
	}
	return &models.CreditOperation{
		UserID:          resp.UserID,
		PreviousCredits: resp.PreviousCredits,
		NewCredits:      resp.NewCredits,
	}, nil
}

// Credit refunds credits to the user's account.
func (c *LedgerClient) Credit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error) {
	req := api.RefundCreditsRequest{
		UserID:          userID,
		CreditsToRefund: amount,
		InternalSecret:  c.internalSecret,
	}
	var resp api.CreditOperationResponse
	if err := c.do(ctx, http.MethodPost, "/credits/refund", req, &resp); err != nil {
		return nil, err
	}
	return &models.CreditOperation{
		UserID:          resp.UserID,
		PreviousCredits: resp.PreviousCredits,
		NewCredits:      resp.NewCredits,
	}, nil
}

// RosterClient implements saga.Roster over the session service API.
type RosterClient struct {
	*Client
}

// NewRosterClient creates a RosterClient.
func NewRosterClient(baseURL, internalSecret string) *RosterClient {
	return &RosterClient{Client: New(baseURL, internalSecret, storage.ErrSessionNotFound)}
}

var _ saga.Roster = (*RosterClient)(nil)

// GetSession fetches a session by ID.
func (c *RosterClient) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// AddParticipant appends the user to the session roster.
func (c *RosterClient) AddParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error) {
	req := api.AddParticipantRequest{
		UserID:         userID,
		InternalSecret: c.internalSecret,
	}
	var resp api.ParticipantOperationResponse
	path := "/sessions/" + url.PathEscape(sessionID) + "/participants"
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return toSnapshot(&resp), nil
}

// RemoveParticipant removes the user from the session roster.
func (c *RosterClient) RemoveParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error) {
	req := api.GeneralQueryRequest{InternalSecret: c.internalSecret}
	var resp api.ParticipantOperationResponse
	path := "/sessions/" + url.PathEscape(sessionID) + "/participants/remove/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return toSnapshot(&resp), nil
}

// NotifierClient implements saga.Notifier over the notification service API.
// Each published event is dispatched synchronously by the remote service.
type NotifierClient struct {
	*Client
}

// NewNotifierClient creates a NotifierClient.
func NewNotifierClient(baseURL, internalSecret string) *NotifierClient {
	return &NotifierClient{Client: New(baseURL, internalSecret, storage.ErrNotificationNotFound)}
}

var _ saga.Notifier = (*NotifierClient)(nil)

// Publish submits a single notification event for dispatch.
func (c *NotifierClient) Publish(ctx context.Context, event models.NotificationEvent) error {
	req := api.NotificationEventRequest{
		EventType:      event.EventType,
		Recipient:      event.Recipient,
		Session:        event.Session,
		InternalSecret: c.internalSecret,
	}
	var resp api.NotificationEventResponse
	return c.do(ctx, http.MethodPost, "/notifications/single", req, &resp)
}

// do runs one request/response cycle. A non-2xx response is decoded into
// its ErrorResponse and mapped to the matching domain error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", c.internalSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
		}
		return nil
	}

	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}
	return c.mapError(&errResp)
}

// mapError converts a wire error back into the typed error the in-process
// stores would have returned.
func (c *Client) mapError(resp *api.ErrorResponse) error {
	switch resp.Code {
	case api.CodeInsufficientCredits:
		err := &storage.InsufficientCreditsError{}
		if resp.Details != nil {
			err.Available = resp.Details.Available
			err.Required = resp.Details.Required
		}
		return err
	case api.CodeSessionFull:
		err := &storage.SessionFullError{}
		if resp.Details != nil {
			err.Current = resp.Details.Current
			err.Max = resp.Details.Max
		}
		return err
	case api.CodeAlreadyRegistered:
		return storage.ErrUserAlreadyRegistered
	case api.CodeNotRegistered:
		return storage.ErrUserNotRegistered
	case api.CodeDeadlinePassed:
		return &storage.CancellationDeadlineError{}
	case api.CodeInvalidSessionState:
		return &storage.InvalidSessionStateError{}
	case api.CodeNotFound:
		return fmt.Errorf("%s: %w", resp.Message, c.notFound)
	default:
		return fmt.Errorf("remote call failed with code %s: %s", resp.Code, resp.Message)
	}
}

func toSnapshot(resp *api.ParticipantOperationResponse) *models.RosterSnapshot {
	return &models.RosterSnapshot{
		SessionID:        resp.SessionID,
		ParticipantCount: resp.ParticipantCount,
		AvailableSpots:   resp.AvailableSpots,
		ParticipantIDs:   resp.ParticipantIDs,
	}
}
