package userui

import (
	"context"
	"embed"
	"log/slog"
	"net/http"
)

// ResetPath is the prefix shared with the JSON reset endpoint so emailed
// links open a browser form.
const ResetPath = "/api/auth/reset-password/"

//go:embed templates/*.html
var assets embed.FS

// Resetter consumes a password reset token. *service.AuthService satisfies it.
type Resetter interface {
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type Opts struct {
	Logger *slog.Logger
	Reset  Resetter
}

func New(opts Opts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Reset == nil {
		logger.Warn("userui: missing reset service")
	}

	app := &app{
		logger:   logger,
		resetSvc: opts.Reset,
	}

	t, err := parseTemplates()
	if err != nil {
		logger.Error("userui: parse templates failed", "err", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		})
	}
	app.templates = t

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ResetPath+"{token}", app.handleResetGet)
	mux.HandleFunc("POST "+ResetPath+"{token}", app.handleResetPost)
	return mux
}

type app struct {
	logger    *slog.Logger
	resetSvc  Resetter
	templates *templates
}
