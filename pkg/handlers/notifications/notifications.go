// Package notifications exposes the dispatcher over HTTP: single and bulk
// event submission, retries of failed deliveries, and history queries.
// All endpoints are inter-service and require the internal secret.
package notifications

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kundapp/booking/pkg/api"
	"github.com/kundapp/booking/pkg/dispatch"
	"github.com/kundapp/booking/pkg/handlers"
	"github.com/kundapp/booking/pkg/models"
)

// Handler holds the dispatcher dependency and the shared internal secret.
type Handler struct {
	Dispatcher     *dispatch.Dispatcher
	InternalSecret string
}

// NewHandler creates a notifications Handler.
func NewHandler(dispatcher *dispatch.Dispatcher, internalSecret string) *Handler {
	return &Handler{Dispatcher: dispatcher, InternalSecret: internalSecret}
}

// Routes mounts the notification endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/notifications/single", h.Single)
	r.Post("/notifications/bulk", h.Bulk)
	r.Post("/notifications/retry", h.Retry)
	r.Post("/notifications/retry-all", h.RetryAll)
	r.Post("/notifications/session/history", h.SessionHistory)
	r.Get("/notifications/failed", h.Failed)
}

// Single handles POST /notifications/single.
func (h *Handler) Single(w http.ResponseWriter, r *http.Request) {
	var req api.NotificationEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}
	if req.EventType == "" || req.Recipient.Email == "" || req.Session.SessionID == "" {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "event_type, recipient email and session id are required")
		return
	}

	record, err := h.Dispatcher.Notify(r.Context(), models.NotificationEvent{
		EventType: req.EventType,
		Recipient: req.Recipient,
		Session:   req.Session,
	})
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, api.ToNotificationResponse(record))
}

// Bulk handles POST /notifications/bulk.
func (h *Handler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req api.BulkNotificationEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}
	if req.EventType == "" || req.Session.SessionID == "" || len(req.Recipients) == 0 {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "event_type, session id and at least one recipient are required")
		return
	}

	result, err := h.Dispatcher.NotifyBulk(r.Context(), req.EventType, req.Session, req.Recipients)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, toBulkResponse(result))
}

// Retry handles POST /notifications/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	var req api.NotificationRetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}
	if req.NotificationID == "" {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "notification_id is required")
		return
	}

	record, err := h.Dispatcher.Retry(r.Context(), req.NotificationID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, api.ToNotificationResponse(record))
}

// RetryAll handles POST /notifications/retry-all.
func (h *Handler) RetryAll(w http.ResponseWriter, r *http.Request) {
	var req api.GeneralQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}

	result, err := h.Dispatcher.RetryAll(r.Context())
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, toBulkResponse(result))
}

// SessionHistory handles POST /notifications/session/history.
func (h *Handler) SessionHistory(w http.ResponseWriter, r *http.Request) {
	var req api.SessionQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}
	if req.SessionID == "" {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "session_id is required")
		return
	}

	records, err := h.Dispatcher.History(r.Context(), req.SessionID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, toResponses(records))
}

// Failed handles GET /notifications/failed. The secret travels in the
// X-Internal-Secret header since GET requests carry no body.
func (h *Handler) Failed(w http.ResponseWriter, r *http.Request) {
	if !handlers.ValidateSecret(w, r.Header.Get("X-Internal-Secret"), h.InternalSecret) {
		return
	}

	records, err := h.Dispatcher.Failed(r.Context())
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, toResponses(records))
}

func toResponses(records []models.NotificationRecord) []api.NotificationEventResponse {
	responses := make([]api.NotificationEventResponse, 0, len(records))
	for i := range records {
		responses = append(responses, api.ToNotificationResponse(&records[i]))
	}
	return responses
}

func toBulkResponse(result *dispatch.BulkResult) api.BulkNotificationEventResponse {
	return api.BulkNotificationEventResponse{
		Total:         result.Total,
		Successful:    result.Successful,
		Failed:        result.Failed,
		Notifications: toResponses(result.Records),
	}
}
