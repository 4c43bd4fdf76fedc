package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"thumbforge/internal/service"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Country  string `json:"country"`
}

func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadJSON(w)
		return
	}

	_, err := a.authSvc.Register(r.Context(), service.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Country:  req.Country,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	WriteMessage(w, http.StatusCreated, "User registered successfully")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadJSON(w)
		return
	}

	if !a.allowAttempt(r, "login", req.Email) {
		writeRateLimited(w)
		return
	}

	token, err := a.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (a *api) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r.Context())
	_ = a.authSvc.Logout(r.Context(), userID)
	WriteMessage(w, http.StatusOK, "Logout successful")
}

type idTokenRequest struct {
	IDToken string `json:"idToken"`
}

func (a *api) handleAuthLoginGoogle(w http.ResponseWriter, r *http.Request) {
	if a.authSvc.GoogleClientID == "" || a.authSvc.VerifyGoogleIDToken == nil {
		handleNotImplemented(w, r)
		return
	}
	a.handleExternalLogin(w, r, a.authSvc.LoginWithGoogle)
}

func (a *api) handleAuthLoginApple(w http.ResponseWriter, r *http.Request) {
	if a.authSvc.AppleClientID == "" || a.authSvc.VerifyAppleIDToken == nil {
		handleNotImplemented(w, r)
		return
	}
	a.handleExternalLogin(w, r, a.authSvc.LoginWithApple)
}

func (a *api) handleExternalLogin(w http.ResponseWriter, r *http.Request, login func(ctx context.Context, idToken string) (string, error)) {
	var req idTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadJSON(w)
		return
	}

	token, err := login(r.Context(), req.IDToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// allowAttempt applies the attempt limiter per client IP and per email.
func (a *api) allowAttempt(r *http.Request, action, email string) bool {
	now := time.Now()
	if !a.attempts.Allow(action+":ip:"+a.clientIP(r), now) {
		return false
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return true
	}
	return a.attempts.Allow(action+":email:"+email, now)
}

func writeRateLimited(w http.ResponseWriter) {
	WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many attempts, try again later")
}
