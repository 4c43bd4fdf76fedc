package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"thumbforge/internal/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type messageBody struct {
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorBody{Error: code, Message: message})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, messageBody{Message: message})
}

// WriteDomainError maps service errors to a status and a fixed message.
// Unrecognized errors become a generic 500; their text is never written out.
func WriteDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, "validation_error", verr.Message())
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", "Invalid request")
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusBadRequest, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, domain.ErrEmailTaken):
		WriteError(w, http.StatusBadRequest, "email_taken", "Email already registered")
	case errors.Is(err, domain.ErrResetTokenInvalid):
		WriteError(w, http.StatusBadRequest, "invalid_reset_token", "Invalid or expired password reset token")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Not found")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func isKnownDomainError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidCredentials) ||
		errors.Is(err, domain.ErrEmailTaken) ||
		errors.Is(err, domain.ErrResetTokenInvalid) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrNotFound)
}

// fail writes err and logs it when it maps to a 500.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !isKnownDomainError(err) {
		fields := []any{"method", r.Method, "path", r.URL.Path, "err", err}
		if rid, ok := GetRequestID(r.Context()); ok {
			fields = append(fields, "request_id", rid)
		}
		a.logger.Error("request failed", fields...)
	}
	WriteDomainError(w, err)
}

func writeBadJSON(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, "bad_json", "Invalid JSON body")
}
