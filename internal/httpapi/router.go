package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"thumbforge/internal/auth"
	"thumbforge/internal/service"
)

const (
	defaultMaxUploadBytes = 10 << 20

	maxAttempts   = 10
	attemptWindow = 5 * time.Minute
)

// ResetMailer delivers password reset links. *service.EmailService satisfies it.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, toEmail, resetURL string) error
}

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error

	Auth       *service.AuthService
	Thumbnails *service.ThumbnailService
	// Tokens defaults to Auth.Tokens.
	Tokens      *auth.TokenManager
	ResetMailer ResetMailer

	// PublicURL is the externally visible base URL used in reset links.
	// When nil the link is built from the request.
	PublicURL   *url.URL
	CORSOrigins []string

	// TrustedProxies are the peers whose X-Forwarded-For header is honored
	// when keying attempt limits. Empty means the header is ignored.
	TrustedProxies []netip.Prefix

	// ResetPage serves the browser form behind emailed reset links.
	ResetPage http.Handler

	// Uploads serves stored images relative to /uploads/.
	Uploads        http.Handler
	MaxUploadBytes int64
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	tokens := opts.Tokens
	if tokens == nil && opts.Auth != nil {
		tokens = opts.Auth.Tokens
	}

	api := &api{
		logger:         logger,
		isProd:         opts.IsProd,
		dbPing:         opts.DBPing,
		authSvc:        opts.Auth,
		thumbSvc:       opts.Thumbnails,
		tokens:         tokens,
		resetMailer:    opts.ResetMailer,
		publicURL:      opts.PublicURL,
		resetPage:      opts.ResetPage,
		trustedProxies: opts.TrustedProxies,
		maxUploadBytes: opts.MaxUploadBytes,
		attempts:       newAttemptLimiter(maxAttempts, attemptWindow),
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /{$}", api.handleHome)
	publicMux.HandleFunc("GET /healthz", api.handleHealthz)
	if opts.Uploads != nil {
		publicMux.Handle("GET "+service.UploadsURLPrefix, http.StripPrefix(service.UploadsURLPrefix, opts.Uploads))
	}

	if api.authSvc == nil || api.tokens == nil {
		apiMux.HandleFunc("/api/auth/", handleNotImplemented)
	} else {
		apiMux.HandleFunc("POST /api/auth/register", api.handleAuthRegister)
		apiMux.HandleFunc("POST /api/auth/login", api.handleAuthLogin)
		apiMux.HandleFunc("POST /api/auth/google", api.handleAuthLoginGoogle)
		apiMux.HandleFunc("POST /api/auth/apple", api.handleAuthLoginApple)
		apiMux.HandleFunc("POST /api/auth/logout", api.requireAuth(api.handleAuthLogout))
		apiMux.HandleFunc("POST /api/auth/forgot-password", api.handleAuthForgot)
		apiMux.HandleFunc("POST /api/auth/reset-password/{token}", api.handleAuthReset)
		if opts.ResetPage != nil {
			apiMux.Handle("GET /api/auth/reset-password/{token}", opts.ResetPage)
		}
	}

	if api.thumbSvc == nil || api.tokens == nil {
		apiMux.HandleFunc("/api/thumbnails", handleNotImplemented)
		apiMux.HandleFunc("/api/thumbnails/", handleNotImplemented)
	} else {
		apiMux.HandleFunc("POST /api/thumbnails", api.requireAuth(api.handleThumbnailsCreate))
		apiMux.HandleFunc("GET /api/thumbnails", api.requireAuth(api.handleThumbnailsList))
		apiMux.HandleFunc("DELETE /api/thumbnails", api.requireAuth(api.handleThumbnailsDeleteMany))
		apiMux.HandleFunc("GET /api/thumbnails/{id}", api.requireAuth(api.handleThumbnailsGet))
		apiMux.HandleFunc("PUT /api/thumbnails/{id}", api.requireAuth(api.handleThumbnailsUpdate))
		apiMux.HandleFunc("DELETE /api/thumbnails/{id}", api.requireAuth(api.handleThumbnailsDelete))
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Handler only reports the match; ServeHTTP sets the path values.
		if _, pattern := apiMux.Handler(r); pattern == "" {
			handleAPINotFound(w, r)
			return
		}
		apiMux.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = CORS(opts.CORSOrigins)(h)
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleAPINotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "Route not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	authSvc     *service.AuthService
	thumbSvc    *service.ThumbnailService
	tokens      *auth.TokenManager
	resetMailer ResetMailer
	publicURL   *url.URL
	resetPage   http.Handler

	maxUploadBytes int64
	attempts       *attemptLimiter
	trustedProxies []netip.Prefix
}

func (a *api) handleHome(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "API is running"})
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
