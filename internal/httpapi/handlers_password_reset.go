package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"thumbforge/internal/domain"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type forgotPasswordResponse struct {
	ResetURL string `json:"resetUrl"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
	// Password is accepted as an alias of NewPassword.
	Password string `json:"password"`
}

func (a *api) handleAuthForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadJSON(w)
		return
	}

	if !a.allowAttempt(r, "forgot", req.Email) {
		writeRateLimited(w)
		return
	}

	token, err := a.authSvc.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		a.fail(w, r, err)
		return
	}

	resetURL := a.resetLink(r, token)
	if a.resetMailer != nil {
		if err := a.resetMailer.SendPasswordReset(r.Context(), strings.TrimSpace(req.Email), resetURL); err != nil {
			a.logger.Error("send reset email failed", "err", err)
		}
	}

	WriteJSON(w, http.StatusOK, forgotPasswordResponse{ResetURL: resetURL})
}

func (a *api) handleAuthReset(w http.ResponseWriter, r *http.Request) {
	if a.resetPage != nil && isFormPost(r) {
		a.resetPage.ServeHTTP(w, r)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadJSON(w)
		return
	}

	password := req.NewPassword
	if password == "" {
		password = req.Password
	}

	if err := a.authSvc.ResetPassword(r.Context(), r.PathValue("token"), password); err != nil {
		a.fail(w, r, err)
		return
	}

	WriteMessage(w, http.StatusOK, "Password reset successfully")
}

func (a *api) resetLink(r *http.Request, token string) string {
	base := a.publicURL
	if base == nil {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if forwarded := r.Header.Get("X-Forwarded-Proto"); (forwarded == "http" || forwarded == "https") && a.fromTrustedProxy(r) {
			scheme = forwarded
		}
		base = &url.URL{Scheme: scheme, Host: r.Host}
	}
	return base.JoinPath("api", "auth", "reset-password", token).String()
}

func isFormPost(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/x-www-form-urlencoded"
}
