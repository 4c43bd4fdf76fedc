package userui

import (
	"errors"
	"net/http"
	"strings"

	"thumbforge/internal/domain"
)

const resetTitle = "Reset Password"

func (a *app) handleResetGet(w http.ResponseWriter, r *http.Request) {
	if a.resetSvc == nil {
		a.templates.renderError(w, http.StatusServiceUnavailable, "Reset Unavailable", "Password reset is unavailable.")
		return
	}
	token := strings.TrimSpace(r.PathValue("token"))
	if token == "" {
		a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: resetTitle, Error: "Reset token is required."})
		return
	}
	a.templates.renderReset(w, http.StatusOK, resetViewData{Title: resetTitle, Token: token})
}

func (a *app) handleResetPost(w http.ResponseWriter, r *http.Request) {
	if a.resetSvc == nil {
		a.templates.renderError(w, http.StatusServiceUnavailable, "Reset Unavailable", "Password reset is unavailable.")
		return
	}
	token := strings.TrimSpace(r.PathValue("token"))
	if err := r.ParseForm(); err != nil {
		a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: resetTitle, Token: token, Error: "Invalid form submission."})
		return
	}

	password := r.PostFormValue("password")
	confirm := r.PostFormValue("confirm")

	switch {
	case token == "":
		a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: resetTitle, Error: "Reset token is required."})
		return
	case password == "" || confirm == "":
		a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: resetTitle, Token: token, Error: "All fields are required."})
		return
	case password != confirm:
		a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: resetTitle, Token: token, Error: "Passwords do not match."})
		return
	}

	if err := a.resetSvc.ResetPassword(r.Context(), token, password); err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.Is(err, domain.ErrResetTokenInvalid):
			a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: resetTitle, Error: "Reset link is invalid, expired or already used."})
		case errors.As(err, &verr):
			a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: resetTitle, Token: token, Error: verr.Message()})
		default:
			a.logger.Error("userui: reset password failed", "err", err)
			a.templates.renderReset(w, http.StatusInternalServerError, resetViewData{Title: resetTitle, Token: token, Error: "Failed to reset password."})
		}
		return
	}

	a.templates.renderReset(w, http.StatusOK, resetViewData{
		Title:  resetTitle,
		Notice: "Your password has been reset. Sign in again from the app.",
		Done:   true,
	})
}
