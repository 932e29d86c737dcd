package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"github.com/tendant/simple-submit/pkg/simplesubmit/auth"
	"github.com/tendant/simple-submit/pkg/simplesubmit/hydroshare"
	"github.com/tendant/simple-submit/pkg/simplesubmit/session"
	sessionmemory "github.com/tendant/simple-submit/pkg/simplesubmit/session/memory"
	sessionpg "github.com/tendant/simple-submit/pkg/simplesubmit/session/postgres"
	memorystorage "github.com/tendant/simple-submit/pkg/simplesubmit/storage/memory"
	s3storage "github.com/tendant/simple-submit/pkg/simplesubmit/storage/s3"
	"golang.org/x/oauth2"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Config is the server configuration
type Config struct {
	Port     string `env:"PORT" env-default:"4000"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	S3         S3Config
	HydroShare HydroShareConfig

	// SessionStoreURL is "memory" or a postgres:// connection string
	SessionStoreURL  string `env:"SESSION_STORE_URL" env-default:"memory"`
	SessionJWTSecret string `env:"SESSION_JWT_SECRET"`
	SecureCookies    bool   `env:"SESSION_SECURE_COOKIES" env-default:"false"`

	// Postgres sessions untouched for SessionRetention are purged on SessionPurgeSchedule
	SessionPurgeSchedule string        `env:"SESSION_PURGE_SCHEDULE" env-default:"@every 15m"`
	SessionRetention     time.Duration `env:"SESSION_RETENTION" env-default:"24h"`
}

// S3Config configures the thumbnail bucket. An empty bucket selects the in-memory store.
type S3Config struct {
	Bucket        string `env:"S3_BUCKET_NAME"`
	Region        string `env:"S3_REGION" env-default:"us-east-1"`
	AccessKey     string `env:"S3_ACCESS_KEY"`
	SecretKey     string `env:"S3_SECRET_KEY"`
	Endpoint      string `env:"S3_ENDPOINT"`
	PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`
	KeyPrefix     string `env:"S3_KEY_PREFIX"`
}

// HydroShareConfig configures the OAuth2 client and the resource API
type HydroShareConfig struct {
	ClientID     string   `env:"HS_CLIENT_ID"`
	ClientSecret string   `env:"HS_CLIENT_SECRET"`
	AuthorizeURL string   `env:"HS_AUTHORIZE_URL" env-default:"https://www.hydroshare.org/o/authorize/"`
	TokenURL     string   `env:"HS_TOKEN_URL" env-default:"https://www.hydroshare.org/o/token/"`
	RedirectURI  string   `env:"HS_REDIRECT_URI" env-default:"http://localhost:4000/auth/callback"`
	Scopes       []string `env:"HS_SCOPES" env-separator:" "`
	APIURL       string   `env:"HS_API_URL" env-default:"https://www.hydroshare.org/hsapi"`
	SiteURL      string   `env:"HS_SITE_URL" env-default:"https://www.hydroshare.org"`
}

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:                 "4000",
		LogLevel:             "info",
		SessionStoreURL:      "memory",
		SessionPurgeSchedule: "@every 15m",
		SessionRetention:     24 * time.Hour,
		S3:                   S3Config{Region: "us-east-1"},
		HydroShare: HydroShareConfig{
			AuthorizeURL: auth.DefaultAuthorizeURL,
			TokenURL:     auth.DefaultTokenURL,
			RedirectURI:  "http://localhost:4000/auth/callback",
			APIURL:       hydroshare.DefaultBaseURL,
			SiteURL:      hydroshare.DefaultSiteURL,
		},
	}
}

// WithEnv reads the environment. Variables that are unset fall back to their
// env-default, so apply it before programmatic options.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithSessionStore sets the session store URL
func WithSessionStore(url string) Option {
	return func(c *Config) error {
		c.SessionStoreURL = url
		return nil
	}
}

// WithSessionSecret sets the key signing session cookies
func WithSessionSecret(secret string) Option {
	return func(c *Config) error {
		c.SessionJWTSecret = secret
		return nil
	}
}

// WithS3 configures the thumbnail bucket
func WithS3(s3 S3Config) Option {
	return func(c *Config) error {
		if s3.Region == "" {
			s3.Region = c.S3.Region
		}
		c.S3 = s3
		return nil
	}
}

// WithHydroShare sets the OAuth2 client and API endpoints
func WithHydroShare(hs HydroShareConfig) Option {
	return func(c *Config) error {
		c.HydroShare = hs
		return nil
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.SessionJWTSecret == "" {
		return errors.New("SESSION_JWT_SECRET is required")
	}
	if c.HydroShare.ClientID == "" {
		return errors.New("HS_CLIENT_ID is required")
	}
	if !c.sessionStoreIsMemory() && !c.sessionStoreIsPostgres() {
		return fmt.Errorf("unsupported SESSION_STORE_URL format: %s (use 'memory' or 'postgres://...')", c.SessionStoreURL)
	}
	if c.sessionStoreIsPostgres() {
		if _, err := cron.Parse(c.SessionPurgeSchedule); err != nil {
			return fmt.Errorf("invalid SESSION_PURGE_SCHEDULE %q: %w", c.SessionPurgeSchedule, err)
		}
		if c.SessionRetention < time.Hour {
			return errors.New("SESSION_RETENTION must be at least 1h")
		}
	}
	return nil
}

func (c *Config) sessionStoreIsMemory() bool {
	return c.SessionStoreURL == "" || c.SessionStoreURL == "memory"
}

func (c *Config) sessionStoreIsPostgres() bool {
	return strings.HasPrefix(c.SessionStoreURL, "postgres://") || strings.HasPrefix(c.SessionStoreURL, "postgresql://")
}

// BuildThumbnailStore returns the S3 store, or an in-memory store when no bucket is configured
func (c *Config) BuildThumbnailStore() (simplesubmit.ThumbnailStore, error) {
	if c.S3.Bucket == "" {
		base := c.S3.PublicBaseURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%s/thumbnails", c.Port)
		}
		return memorystorage.New(strings.TrimRight(base, "/")), nil
	}

	store, err := s3storage.New(s3storage.Config{
		Region:          c.S3.Region,
		Bucket:          c.S3.Bucket,
		AccessKeyID:     c.S3.AccessKey,
		SecretAccessKey: c.S3.SecretKey,
		Endpoint:        c.S3.Endpoint,
		UsePathStyle:    c.S3.Endpoint != "",
		PublicBaseURL:   c.S3.PublicBaseURL,
		KeyPrefix:       c.S3.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 thumbnail store: %w", err)
	}
	return store, nil
}

// BuildSessionStore opens the configured session store. Postgres stores also get a
// purge janitor. The returned func releases both.
func (c *Config) BuildSessionStore(ctx context.Context, logger *slog.Logger) (session.Store, func(), error) {
	if c.sessionStoreIsMemory() {
		return sessionmemory.New(), func() {}, nil
	}

	store, pool, err := sessionpg.NewWithPool(ctx, c.SessionStoreURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	stopJanitor, err := store.StartJanitor(c.SessionPurgeSchedule, c.SessionRetention, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, func() {
		stopJanitor()
		pool.Close()
	}, nil
}

// BuildAuthProvider returns the OAuth2 PKCE provider
func (c *Config) BuildAuthProvider() *auth.Provider {
	return auth.NewProvider(auth.Config{
		ClientID:     c.HydroShare.ClientID,
		ClientSecret: c.HydroShare.ClientSecret,
		AuthorizeURL: c.HydroShare.AuthorizeURL,
		TokenURL:     c.HydroShare.TokenURL,
		RedirectURL:  c.HydroShare.RedirectURI,
		Scopes:       c.HydroShare.Scopes,
	})
}

// RepositoryFactory builds a repository client authorized by a user's token
type RepositoryFactory func(ts oauth2.TokenSource) simplesubmit.Repository

// BuildRepositoryFactory returns a factory for HydroShare clients
func (c *Config) BuildRepositoryFactory() RepositoryFactory {
	apiURL, siteURL := c.HydroShare.APIURL, c.HydroShare.SiteURL
	return func(ts oauth2.TokenSource) simplesubmit.Repository {
		return hydroshare.New(
			hydroshare.WithBaseURL(apiURL),
			hydroshare.WithSiteURL(siteURL),
			hydroshare.WithTokenSource(ts),
		)
	}
}

// NewLogger creates a text slog.Logger with the provided level string.
func NewLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFromString(level),
	})
	return slog.New(handler)
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
