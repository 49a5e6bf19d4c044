package notifications_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kundapp/booking/pkg/api"
	"github.com/kundapp/booking/pkg/dispatch"
	"github.com/kundapp/booking/pkg/handlers/notifications"
	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// stubSender fails while failing is true.
type stubSender struct {
	failing bool
}

func (s *stubSender) Send(ctx context.Context, record *models.NotificationRecord) error {
	if s.failing {
		return errors.New("smtp connection refused")
	}
	return nil
}

func newRouter(sender dispatch.Sender) *chi.Mux {
	retry := dispatch.NewRetryPolicy(1, 0)
	breaker := dispatch.NewCircuitBreaker(dispatch.BreakerConfig{FailureThreshold: 100, CoolDown: time.Minute, HalfOpenProbes: 1})
	d := dispatch.New(memory.NewNotifications(), sender, retry, breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	notifications.NewHandler(d, testSecret).Routes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func singleRequest() api.NotificationEventRequest {
	return api.NotificationEventRequest{
		EventType:      models.UserEnrolled,
		Recipient:      models.Recipient{Email: "user@example.com", FirstName: "Ana"},
		Session:        models.SessionSnapshot{SessionID: "s1", Subject: "Yoga", StartTime: time.Now().Add(72 * time.Hour)},
		InternalSecret: testSecret,
	}
}

func TestSingle(t *testing.T) {
	t.Run("Delivered", func(t *testing.T) {
		router := newRouter(&stubSender{})

		rr := postJSON(t, router, "/notifications/single", singleRequest())

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp api.NotificationEventResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, models.NotificationSent, resp.Status)
		assert.NotEmpty(t, resp.NotificationID)
	})

	t.Run("Delivery Failure Still Returns The Record", func(t *testing.T) {
		router := newRouter(&stubSender{failing: true})

		rr := postJSON(t, router, "/notifications/single", singleRequest())

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp api.NotificationEventResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, models.NotificationFailed, resp.Status)
		assert.Contains(t, resp.ErrorMessage, "smtp connection refused")
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		router := newRouter(&stubSender{})
		req := singleRequest()
		req.InternalSecret = "wrong"

		rr := postJSON(t, router, "/notifications/single", req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Missing Recipient", func(t *testing.T) {
		router := newRouter(&stubSender{})
		req := singleRequest()
		req.Recipient.Email = ""

		rr := postJSON(t, router, "/notifications/single", req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestBulk(t *testing.T) {
	router := newRouter(&stubSender{})

	rr := postJSON(t, router, "/notifications/bulk", api.BulkNotificationEventRequest{
		EventType: models.SessionCancelled,
		Session:   models.SessionSnapshot{SessionID: "s1", Subject: "Yoga"},
		Recipients: []models.Recipient{
			{Email: "a@example.com"},
			{Email: "b@example.com"},
		},
		InternalSecret: testSecret,
	})

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp api.BulkNotificationEventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.Successful)
	assert.Len(t, resp.Notifications, 2)
}

func TestRetryFlow(t *testing.T) {
	sender := &stubSender{failing: true}
	router := newRouter(sender)

	// Produce a failed delivery.
	rr := postJSON(t, router, "/notifications/single", singleRequest())
	require.Equal(t, http.StatusOK, rr.Code)
	var failed api.NotificationEventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &failed))
	require.Equal(t, models.NotificationFailed, failed.Status)

	// The failed record shows up in the failed listing.
	req := httptest.NewRequest(http.MethodGet, "/notifications/failed", nil)
	req.Header.Set("X-Internal-Secret", testSecret)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []api.NotificationEventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	// Retry after the sender recovers.
	sender.failing = false
	rr = postJSON(t, router, "/notifications/retry", api.NotificationRetryRequest{
		NotificationID: failed.NotificationID,
		InternalSecret: testSecret,
	})

	assert.Equal(t, http.StatusOK, rr.Code)
	var retried api.NotificationEventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &retried))
	assert.Equal(t, failed.NotificationID, retried.NotificationID)
	assert.Equal(t, models.NotificationSent, retried.Status)

	// History still holds exactly one record for the session.
	rr = postJSON(t, router, "/notifications/session/history", api.SessionQueryRequest{
		SessionID:      "s1",
		InternalSecret: testSecret,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var history []api.NotificationEventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Len(t, history, 1)
}

func TestRetryAllEndpoint(t *testing.T) {
	sender := &stubSender{failing: true}
	router := newRouter(sender)

	for i := 0; i < 2; i++ {
		rr := postJSON(t, router, "/notifications/single", singleRequest())
		require.Equal(t, http.StatusOK, rr.Code)
	}

	sender.failing = false
	rr := postJSON(t, router, "/notifications/retry-all", api.GeneralQueryRequest{InternalSecret: testSecret})

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp api.BulkNotificationEventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.Successful)
	assert.Equal(t, 0, resp.Failed)
}

func TestFailedRequiresSecret(t *testing.T) {
	router := newRouter(&stubSender{})

	req := httptest.NewRequest(http.MethodGet, "/notifications/failed", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRetryUnknownNotification(t *testing.T) {
	router := newRouter(&stubSender{})

	rr := postJSON(t, router, "/notifications/retry", api.NotificationRetryRequest{
		NotificationID: "missing",
		InternalSecret: testSecret,
	})

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
