// Package credits exposes the internal credit ledger endpoints used by the
// saga coordinator: deduct on enrollment, refund on cancellation or
// compensation.
package credits

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kundapp/booking/pkg/api"
	"github.com/kundapp/booking/pkg/handlers"
	"github.com/kundapp/booking/pkg/storage"
)

// Handler holds the ledger dependency and the shared internal secret.
type Handler struct {
	Ledger         storage.LedgerStore
	InternalSecret string
}

// NewHandler creates a credits Handler.
func NewHandler(ledger storage.LedgerStore, internalSecret string) *Handler {
	return &Handler{Ledger: ledger, InternalSecret: internalSecret}
}

// Routes mounts the credit endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/credits/deduct", h.Deduct)
	r.Post("/credits/refund", h.Refund)
	r.Get("/credits/{userID}", h.GetAccount)
}

// Deduct handles POST /credits/deduct.
func (h *Handler) Deduct(w http.ResponseWriter, r *http.Request) {
	var req api.DeductCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}
	if req.UserID == "" || req.CreditsRequired <= 0 {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "user_id and a positive credits_required are required")
		return
	}

	op, err := h.Ledger.Debit(r.Context(), req.UserID, req.CreditsRequired)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, api.CreditOperationResponse{
		UserID:          op.UserID,
		PreviousCredits: op.PreviousCredits,
		NewCredits:      op.NewCredits,
	})
}

// Refund handles POST /credits/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req api.RefundCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if !handlers.ValidateSecret(w, req.InternalSecret, h.InternalSecret) {
		return
	}
	if req.UserID == "" || req.CreditsToRefund <= 0 {
		handlers.WriteErrorCode(w, http.StatusBadRequest, api.CodeValidation, "user_id and a positive credits_to_refund are required")
		return
	}

	op, err := h.Ledger.Credit(r.Context(), req.UserID, req.CreditsToRefund)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, api.CreditOperationResponse{
		UserID:          op.UserID,
		PreviousCredits: op.PreviousCredits,
		NewCredits:      op.NewCredits,
	})
}

// GetAccount handles GET /credits/{userID}. The secret travels in the
// X-Internal-Secret header since GET requests carry no body.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if !handlers.ValidateSecret(w, r.Header.Get("X-Internal-Secret"), h.InternalSecret) {
		return
	}

	account, err := h.Ledger.GetAccount(r.Context(), userID)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, account)
}
