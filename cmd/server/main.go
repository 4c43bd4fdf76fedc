package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thumbforge/internal/auth"
	"thumbforge/internal/config"
	"thumbforge/internal/email"
	"thumbforge/internal/httpapi"
	"thumbforge/internal/service"
	"thumbforge/internal/storage"
	"thumbforge/internal/store/mongo"
	"thumbforge/internal/store/postgres"
	"thumbforge/internal/userui"
)

const tokenIssuer = "thumbforge"

// imageBackend is what the server needs from image storage: writes and
// removals for the thumbnail service and an HTTP handler for /uploads/.
type imageBackend interface {
	service.ImageStore
	http.Handler
}

type stores struct {
	users      service.UsersStore
	thumbnails service.ThumbnailsStore
	ping       func(context.Context) error
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	images, err := openImages(ctx, cfg)
	if err != nil {
		logger.Error("image storage init failed", "err", err)
		os.Exit(1)
	}

	var (
		authSvc  *service.AuthService
		thumbSvc *service.ThumbnailService
		dbPing   func(context.Context) error
	)

	tokens := auth.NewTokenManager([]byte(cfg.JWTSecret), cfg.TokenTTL, tokenIssuer)

	if cfg.DBDSN != "" {
		st, err := openStores(ctx, cfg, logger)
		if err != nil {
			logger.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer st.close()

		authSvc = &service.AuthService{
			Users:          st.users,
			Tokens:         tokens,
			ResetTTL:       cfg.ResetTTL,
			GoogleClientID: cfg.GoogleClientID,
			AppleClientID:  cfg.AppleClientID,
		}
		if cfg.GoogleClientID != "" {
			authSvc.VerifyGoogleIDToken = auth.VerifyGoogleIDToken
		}
		if cfg.AppleClientID != "" {
			authSvc.VerifyAppleIDToken = auth.VerifyAppleIDToken
		}
		thumbSvc = &service.ThumbnailService{
			Store:  st.thumbnails,
			Images: images,
			Logger: logger,
		}
		dbPing = st.ping
	} else {
		logger.Warn("APP_DB_DSN not set; auth and thumbnail routes are disabled")
	}

	var resetPage http.Handler
	if authSvc != nil {
		resetPage = userui.New(userui.Opts{Logger: logger, Reset: authSvc})
	}

	var mailer httpapi.ResetMailer
	if cfg.SMTP.Enabled() {
		emailSvc, err := newEmailService(cfg.SMTP)
		if err != nil {
			logger.Error("smtp config invalid", "err", err)
			os.Exit(1)
		}
		mailer = emailSvc
		logger.Info("reset emails enabled", "smtp_host", cfg.SMTP.Host)
	}

	router := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:      logger,
		IsProd:      cfg.IsProd(),
		DBPing:      dbPing,
		Auth:        authSvc,
		Thumbnails:  thumbSvc,
		Tokens:      tokens,
		ResetMailer: mailer,
		PublicURL:   cfg.PublicURL,
		ResetPage:   resetPage,
		CORSOrigins: cfg.CORSOrigins,
		Uploads:     images,

		TrustedProxies: cfg.TrustedProxies,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr, "storage", cfg.Storage)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

// openStores connects to the backend named by the DSN scheme and prepares its
// schema: goose migrations for postgres, indexes for mongo.
func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	switch config.DBDriver(cfg.DBDSN) {
	case "postgres":
		pool, err := postgres.Open(ctx, cfg.DBDSN)
		if err != nil {
			return stores{}, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return stores{}, err
		}
		logger.Info("postgres ready")
		return stores{
			users:      postgres.NewUsersStore(pool),
			thumbnails: postgres.NewThumbnailsStore(pool),
			ping:       pool.Ping,
			close:      pool.Close,
		}, nil

	case "mongo":
		client, db, err := mongo.Open(ctx, cfg.DBDSN, cfg.DBName)
		if err != nil {
			return stores{}, err
		}
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return stores{}, err
		}
		logger.Info("mongo ready", "db", cfg.DBName)
		return stores{
			users:      mongo.NewUsersStore(db),
			thumbnails: mongo.NewThumbnailsStore(db),
			ping: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Disconnect(ctx)
			},
		}, nil

	default:
		return stores{}, errors.New("unsupported APP_DB_DSN scheme")
	}
}

func openImages(ctx context.Context, cfg config.Config) (imageBackend, error) {
	if cfg.Storage == config.StorageS3 {
		s3, err := storage.NewS3(ctx, storage.S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return storage.NewDisk(cfg.UploadsDir), nil
}

func newEmailService(c config.SMTPConfig) (*service.EmailService, error) {
	from, err := mail.ParseAddress(c.From)
	if err != nil {
		return nil, fmt.Errorf("APP_SMTP_FROM: %w", err)
	}
	return &service.EmailService{
		Settings: email.SMTPSettings{
			Host:     c.Host,
			Port:     c.Port,
			Username: c.Username,
			Password: c.Password,
			TLSMode:  c.TLSMode,
		},
		FromName:  from.Name,
		FromEmail: from.Address,
	}, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
