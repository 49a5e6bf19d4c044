// Package enrollment exposes the user-facing booking endpoints. Each
// request drives the saga coordinator, which owns the ordering and
// compensation rules.
package enrollment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kundapp/booking/pkg/api"
	"github.com/kundapp/booking/pkg/handlers"
	"github.com/kundapp/booking/pkg/saga"
)

// Handler drives the saga coordinator.
type Handler struct {
	Coordinator *saga.Coordinator
}

// NewHandler creates an enrollment Handler.
func NewHandler(coordinator *saga.Coordinator) *Handler {
	return &Handler{Coordinator: coordinator}
}

// Routes mounts the enrollment endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions/{sessionID}/enroll", h.Enroll)
	r.Post("/sessions/{sessionID}/cancel", h.Cancel)
}

// Enroll handles POST /sessions/{sessionID}/enroll.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	user, ok := decodeParticipant(w, r)
	if !ok {
		return
	}

	result, err := h.Coordinator.Enroll(r.Context(), user, sessionID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, api.EnrollmentResponse{
		SessionID:       result.SessionID,
		UserID:          result.UserID,
		PreviousCredits: result.PreviousCredits,
		NewCredits:      result.NewCredits,
		Roster:          api.ToRosterResponse(&result.Roster),
	})
}

// Cancel handles POST /sessions/{sessionID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	user, ok := decodeParticipant(w, r)
	if !ok {
		return
	}

	result, err := h.Coordinator.Cancel(r.Context(), user, sessionID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, api.CancellationResponse{
		SessionID:       result.SessionID,
		UserID:          result.UserID,
		CreditsRefunded: result.CreditsRefunded,
		NewCredits:      result.NewCredits,
		Roster:          api.ToRosterResponse(&result.Roster),
	})
}

func decodeParticipant(w http.ResponseWriter, r *http.Request) (saga.Participant, bool) {
	var req api.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return saga.Participant{}, false
	}
	if req.UserID == "" {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "user_id is required")
		return saga.Participant{}, false
	}
	return saga.Participant{ID: req.UserID, Email: req.Email, FirstName: req.FirstName}, true
}
