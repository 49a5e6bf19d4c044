// Package handlers provides the shared response helpers for the HTTP
// surface: JSON encoding and the mapping from domain errors to the error
// taxonomy (status code + machine-readable error code).
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kundapp/booking/pkg/api"
	"github.com/kundapp/booking/pkg/saga"
	"github.com/kundapp/booking/pkg/storage"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", slog.String("error", err.Error()))
	}
}

// WriteErrorCode writes an error body with an explicit code and message.
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, api.ErrorResponse{Code: code, Message: message})
}

// WriteError maps a domain error to its HTTP status and error code.
//
// Business-rule conflicts keep their specific, human-readable message;
// critical errors (failed compensation) deliberately return a generic
// "contact support" message while the full context goes to the logs.
func WriteError(w http.ResponseWriter, err error) {
	var insufficientCredits *storage.InsufficientCreditsError
	var sessionFull *storage.SessionFullError
	var invalidState *storage.InvalidSessionStateError
	var deadlinePassed *storage.CancellationDeadlineError
	var sessionStarted *saga.SessionStartedError
	var rollbackFailed *saga.RollbackFailedError

	switch {
	case errors.As(err, &rollbackFailed):
		WriteJSON(w, http.StatusInternalServerError, api.ErrorResponse{
			Code:    api.CodeCreditRollbackFailed,
			Message: "Something went wrong with your booking. Please contact support.",
		})
	case errors.As(err, &insufficientCredits):
		WriteJSON(w, http.StatusPaymentRequired, api.ErrorResponse{
			Code:    api.CodeInsufficientCredits,
			Message: err.Error(),
			Details: &api.ErrorDetail{
				Available: insufficientCredits.Available,
				Required:  insufficientCredits.Required,
			},
		})
	case errors.As(err, &sessionFull):
		WriteJSON(w, http.StatusConflict, api.ErrorResponse{
			Code:    api.CodeSessionFull,
			Message: err.Error(),
			Details: &api.ErrorDetail{
				Current: sessionFull.Current,
				Max:     sessionFull.Max,
			},
		})
	case errors.Is(err, storage.ErrUserAlreadyRegistered):
		WriteErrorCode(w, http.StatusConflict, api.CodeAlreadyRegistered, err.Error())
	case errors.Is(err, storage.ErrUserNotRegistered):
		WriteErrorCode(w, http.StatusBadRequest, api.CodeNotRegistered, err.Error())
	case errors.As(err, &deadlinePassed):
		WriteErrorCode(w, http.StatusBadRequest, api.CodeDeadlinePassed, err.Error())
	case errors.As(err, &invalidState):
		WriteErrorCode(w, http.StatusBadRequest, api.CodeInvalidSessionState, err.Error())
	case errors.As(err, &sessionStarted):
		WriteErrorCode(w, http.StatusBadRequest, api.CodeSessionStarted, err.Error())
	case errors.Is(err, storage.ErrAccountNotFound),
		errors.Is(err, storage.ErrSessionNotFound),
		errors.Is(err, storage.ErrNotificationNotFound):
		WriteErrorCode(w, http.StatusNotFound, api.CodeNotFound, err.Error())
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		WriteErrorCode(w, http.StatusInternalServerError, api.CodeInternal, "internal error")
	}
}

// ValidateSecret checks the internal secret of an inter-service request,
// writing a 401 when it does not match. It reports whether the request may
// proceed.
func ValidateSecret(w http.ResponseWriter, provided, expected string) bool {
	if provided != expected {
		slog.Warn("invalid internal secret provided")
		WriteErrorCode(w, http.StatusUnauthorized, api.CodeUnauthorized, "invalid internal secret")
		return false
	}
	return true
}
