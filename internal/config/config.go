package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDisk = "disk"
	StorageS3   = "s3"
)

type Config struct {
	Env         string
	Addr        string
	PublicURL   *url.URL
	DBDSN       string
	DBName      string
	JWTSecret   string
	TokenTTL    time.Duration
	ResetTTL    time.Duration
	LogLevel    string
	CORSOrigins []string

	// TrustedProxies are the peers whose X-Forwarded-For header is honored.
	TrustedProxies []netip.Prefix

	Storage    string
	UploadsDir string
	S3         S3Config

	GoogleClientID string
	AppleClientID  string

	SMTP SMTPConfig
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLSMode  string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.From != "" }

// Load reads .env from the working directory (if present) and then the process
// environment. Variables already set in the environment are never overridden.
func Load() (Config, error) {
	if err := loadDotEnvFile(".env", os.Setenv, os.Getenv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	return LoadFromEnv(os.Getenv)
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:        getenv("APP_ENV"),
		Addr:       getenv("APP_ADDR"),
		DBDSN:      getenv("APP_DB_DSN"),
		DBName:     strings.TrimSpace(getenv("APP_DB_NAME")),
		LogLevel:   getenv("APP_LOG_LEVEL"),
		JWTSecret:  getenv("APP_JWT_SECRET"),
		Storage:    strings.ToLower(strings.TrimSpace(getenv("APP_STORAGE"))),
		UploadsDir: strings.TrimSpace(getenv("APP_UPLOADS_DIR")),
		S3: S3Config{
			Bucket:    strings.TrimSpace(getenv("APP_S3_BUCKET")),
			Region:    strings.TrimSpace(getenv("APP_S3_REGION")),
			Endpoint:  strings.TrimSpace(getenv("APP_S3_ENDPOINT")),
			AccessKey: strings.TrimSpace(getenv("APP_S3_ACCESS_KEY")),
			SecretKey: getenv("APP_S3_SECRET_KEY"),
		},
		GoogleClientID: strings.TrimSpace(getenv("APP_GOOGLE_CLIENT_ID")),
		AppleClientID:  strings.TrimSpace(getenv("APP_APPLE_CLIENT_ID")),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	if cfg.Addr == "" {
		if port := strings.TrimSpace(getenv("PORT")); port != "" {
			n, err := strconv.Atoi(port)
			if err != nil || n <= 0 || n > 65535 {
				return Config{}, errors.New("PORT: must be a valid port number")
			}
			cfg.Addr = ":" + port
		} else {
			cfg.Addr = "127.0.0.1:8080"
		}
	}
	if cfg.DBName == "" {
		cfg.DBName = "thumbnails"
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "uploads"
	}

	publicURLRaw := getenv("APP_PUBLIC_URL")
	if publicURLRaw != "" {
		parsed, err := url.Parse(publicURLRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_PUBLIC_URL: %w", err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return Config{}, errors.New("APP_PUBLIC_URL: must be an absolute URL")
		}
		switch parsed.Scheme {
		case "http", "https":
		default:
			return Config{}, errors.New("APP_PUBLIC_URL: scheme must be http or https")
		}
		cfg.PublicURL = parsed
	}

	var err error
	if cfg.TokenTTL, err = parseTTL(getenv, "APP_TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ResetTTL, err = parseTTL(getenv, "APP_RESET_TOKEN_TTL", 10*time.Minute); err != nil {
		return Config{}, err
	}

	if cfg.DBDSN != "" && DBDriver(cfg.DBDSN) == "" {
		return Config{}, errors.New("APP_DB_DSN: scheme must be postgres, postgresql, mongodb or mongodb+srv")
	}

	switch cfg.Storage {
	case "":
		cfg.Storage = StorageDisk
	case StorageDisk:
	case StorageS3:
		if cfg.S3.Bucket == "" {
			return Config{}, errors.New("APP_S3_BUCKET: required when APP_STORAGE=s3")
		}
		if cfg.S3.Region == "" {
			cfg.S3.Region = "us-east-1"
		}
		if (cfg.S3.AccessKey == "") != (cfg.S3.SecretKey == "") {
			return Config{}, errors.New("APP_S3_ACCESS_KEY and APP_S3_SECRET_KEY: set both or neither")
		}
	default:
		return Config{}, errors.New("APP_STORAGE: must be disk or s3")
	}

	cfg.CORSOrigins = parseCSV(getenv("APP_CORS_ORIGINS"))
	if len(cfg.CORSOrigins) == 0 && !cfg.IsProd() {
		cfg.CORSOrigins = []string{"*"}
	}

	if cfg.TrustedProxies, err = parsePrefixes(parseCSV(getenv("APP_TRUSTED_PROXIES"))); err != nil {
		return Config{}, fmt.Errorf("APP_TRUSTED_PROXIES: %w", err)
	}

	cfg.SMTP, err = parseSMTP(getenv)
	if err != nil {
		return Config{}, err
	}

	if cfg.IsProd() {
		if cfg.PublicURL == nil {
			return Config{}, errors.New("APP_PUBLIC_URL: required in prod")
		}
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.JWTSecret) < 32 {
			return Config{}, errors.New("APP_JWT_SECRET: must be at least 32 bytes in prod")
		}
	} else if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-only-insecure-jwt-secret-change-me"
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

// DBDriver reports which store backs the DSN: "postgres", "mongo" or "" when unknown.
func DBDriver(dsn string) string {
	scheme, _, ok := strings.Cut(dsn, "://")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return "postgres"
	case "mongodb", "mongodb+srv":
		return "mongo"
	default:
		return ""
	}
}

// parsePrefixes accepts CIDRs and bare addresses; a bare address is a
// single-host prefix.
func parsePrefixes(items []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range items {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func parseTTL(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", key)
	}
	return ttl, nil
}

func parseSMTP(getenv func(string) string) (SMTPConfig, error) {
	smtp := SMTPConfig{
		Host:     strings.TrimSpace(getenv("APP_SMTP_HOST")),
		Username: getenv("APP_SMTP_USERNAME"),
		Password: getenv("APP_SMTP_PASSWORD"),
		From:     strings.TrimSpace(getenv("APP_SMTP_FROM")),
		TLSMode:  strings.ToLower(strings.TrimSpace(getenv("APP_SMTP_TLS_MODE"))),
		Port:     587,
	}
	if raw := strings.TrimSpace(getenv("APP_SMTP_PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return SMTPConfig{}, errors.New("APP_SMTP_PORT: must be a valid port number")
		}
		smtp.Port = port
	}
	switch smtp.TLSMode {
	case "", "starttls", "tls", "none":
	default:
		return SMTPConfig{}, errors.New("APP_SMTP_TLS_MODE: must be starttls, tls or none")
	}
	if smtp.Host != "" && smtp.From == "" {
		return SMTPConfig{}, errors.New("APP_SMTP_FROM: required when APP_SMTP_HOST is set")
	}
	return smtp, nil
}

// loadDotEnvFile copies values from an env file into the environment without
// overriding variables that are already set. Empty values are skipped.
func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, v := range values {
		if v == "" || getenv(k) != "" {
			continue
		}
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
