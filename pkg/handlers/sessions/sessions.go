// Package sessions exposes the internal roster endpoints: participant
// add/remove for the saga coordinator, plus session lifecycle operations.
package sessions

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kundapp/booking/pkg/api"
	"github.com/kundapp/booking/pkg/handlers"
	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage"
)

// Handler holds the roster dependency and the shared internal secret.
type Handler struct {
	Roster         storage.RosterStore
	InternalSecret string
}

// NewHandler creates a sessions Handler.
func NewHandler(roster storage.RosterStore, internalSecret string) *Handler {
	return &Handler{Roster: roster, InternalSecret: internalSecret}
}

// Routes mounts the session endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions/{sessionID}", h.GetSession)
	r.Post("/sessions/{sessionID}/participants", h.AddParticipant)
	r.Post("/sessions/{sessionID}/participants/remove/{userID}", h.RemoveParticipant)
	r.Delete("/sessions/{sessionID}", h.CancelSession)
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}
	if req.TeacherID == "" || req.Subject == "" || req.Capacity <= 0 || req.StartTime.IsZero() {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "teacher_id, subject, a positive capacity and start_time are required")
		return
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:              uuid.New().String(),
		TeacherID:       req.TeacherID,
		Subject:         req.Subject,
		Capacity:        req.Capacity,
		Status:          models.SCHEDULED,
		StartTime:       req.StartTime,
		Duration:        time.Duration(req.DurationMinutes) * time.Minute,
		CreditsRequired: req.CreditsRequired,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := h.Roster.CreateSession(r.Context(), session)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusCreated, created)
}

// GetSession handles GET /sessions/{sessionID}. The secret travels in the
// X-Internal-Secret header since GET requests carry no body.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if !handlers.ValidateSecret(w, r.Header.Get("X-Internal-Secret"), h.InternalSecret) {
		return
	}

	session, err := h.Roster.GetSession(r.Context(), sessionID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, session)
}

// AddParticipant handles POST /sessions/{sessionID}/participants.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req api.AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}
	if req.UserID == "" {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "user_id is required")
		return
	}

	snapshot, err := h.Roster.AddParticipant(r.Context(), sessionID, req.UserID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, api.ToRosterResponse(snapshot))
}

// RemoveParticipant handles POST /sessions/{sessionID}/participants/remove/{userID}.
func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := chi.URLParam(r, "userID")

	var req api.GeneralQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}

	snapshot, err := h.Roster.RemoveParticipant(r.Context(), sessionID, userID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, api.ToRosterResponse(snapshot))
}

// CancelSession handles DELETE /sessions/{sessionID}. This is the
// teacher-initiated lifecycle cancel, distinct from a participant
// cancelling their own enrollment. The secret travels in the
// X-Internal-Secret header since DELETE requests carry no body.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if !handlers.ValidateSecret(w, r.Header.Get("X-Internal-Secret"), h.InternalSecret) {
		return
	}

	session, err := h.Roster.CancelSession(r.Context(), sessionID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, session)
}
