package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	TriggerHTTP  = "http"
	TriggerCron  = "cron"
	TriggerAsynq = "asynq"
)

type Config struct {
	Server      Server
	Database    Database
	Redis       Redis
	Scheduler   Scheduler
	Credentials Credentials
	Platforms   Platforms
	R2          R2
}

type Server struct {
	Port            string        `env:"PORT" env-default:"8080"`
	CronSecret      string        `env:"CRON_SECRET"`
	JWTSecret       string        `env:"SECRET_KEY"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
}

type Database struct {
	// postgres or sqlite
	Driver string `env:"DATABASE_DRIVER" env-default:"postgres"`
	DSN    string `env:"DATABASE_URL"`
}

type Redis struct {
	Enabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type Scheduler struct {
	// http leaves triggering to an external cron hitting /api/cron/dispatch.
	Trigger       string `env:"TRIGGER_MODE" env-default:"http"`
	DispatchSpec  string `env:"DISPATCH_SPEC" env-default:"@every 1m"`
	ReconcileSpec string `env:"RECONCILE_SPEC" env-default:"@every 15m"`
	RefreshSpec   string `env:"REFRESH_SPEC" env-default:"@every 10m"`

	Workers        int           `env:"DISPATCH_WORKERS" env-default:"8"`
	RunDeadline    time.Duration `env:"DISPATCH_RUN_DEADLINE" env-default:"50s"`
	AdapterTimeout time.Duration `env:"ADAPTER_TIMEOUT" env-default:"30s"`
	ClaimLease     time.Duration `env:"CLAIM_LEASE" env-default:"5m"`
	OverdueGrace   time.Duration `env:"OVERDUE_GRACE" env-default:"10m"`

	RetryTransientMaxAttempts int           `env:"RETRY_TRANSIENT_MAX_ATTEMPTS" env-default:"0"`
	RetryTransientBackoff     time.Duration `env:"RETRY_TRANSIENT_BACKOFF" env-default:"5m"`
}

type Credentials struct {
	RefreshBuffer      time.Duration `env:"TOKEN_REFRESH_BUFFER" env-default:"5m"`
	RefreshWindow      time.Duration `env:"TOKEN_REFRESH_WINDOW" env-default:"30m"`
	RefreshConcurrency int           `env:"TOKEN_REFRESH_CONCURRENCY" env-default:"10"`
	// hex encoded AES key, 32 bytes decoded
	EncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
}

type OAuthApp struct {
	ClientID     string
	ClientSecret string
}

type Platforms struct {
	LinkedInClientID     string `env:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string `env:"LINKEDIN_CLIENT_SECRET"`
	TwitterClientID      string `env:"TWITTER_CLIENT_ID"`
	TwitterClientSecret  string `env:"TWITTER_CLIENT_SECRET"`
	FacebookClientID     string `env:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `env:"FACEBOOK_CLIENT_SECRET"`
	GoogleClientID       string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `env:"GOOGLE_CLIENT_SECRET"`
	TiktokClientKey      string `env:"TIKTOK_CLIENT_KEY"`
	TiktokClientSecret   string `env:"TIKTOK_CLIENT_SECRET"`

	// requests per second against each platform API
	RatePerSecond float64 `env:"PLATFORM_RATE_PER_SECOND" env-default:"5"`
	RateBurst     int     `env:"PLATFORM_RATE_BURST" env-default:"5"`

	PollInterval time.Duration `env:"CONTAINER_POLL_INTERVAL" env-default:"3s"`
	PollAttempts int           `env:"CONTAINER_POLL_ATTEMPTS" env-default:"20"`
}

func (p Platforms) LinkedIn() OAuthApp { return OAuthApp{p.LinkedInClientID, p.LinkedInClientSecret} }
func (p Platforms) Twitter() OAuthApp  { return OAuthApp{p.TwitterClientID, p.TwitterClientSecret} }
func (p Platforms) Facebook() OAuthApp { return OAuthApp{p.FacebookClientID, p.FacebookClientSecret} }
func (p Platforms) Google() OAuthApp   { return OAuthApp{p.GoogleClientID, p.GoogleClientSecret} }
func (p Platforms) TikTok() OAuthApp   { return OAuthApp{p.TiktokClientKey, p.TiktokClientSecret} }

type R2 struct {
	AccountID  string `env:"R2_ACCOUNT_ID"`
	AccessKey  string `env:"R2_ACCESS_KEY"`
	SecretKey  string `env:"R2_SECRET_KEY"`
	BucketName string `env:"R2_BUCKET_NAME"`
	// Endpoint overrides the account endpoint, for MinIO or tests.
	Endpoint      string `env:"R2_ENDPOINT"`
	MaxMediaBytes int64  `env:"MAX_MEDIA_BYTES" env-default:"536870912"`
}

func (r R2) Enabled() bool {
	return r.BucketName != "" && (r.AccountID != "" || r.Endpoint != "")
}

func (r R2) EndpointURL() string {
	if r.Endpoint != "" {
		return r.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.AccountID)
}

var (
	ErrMissingDSN       = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret = errors.New("SECRET_KEY is required")
	ErrEncryptionKey    = errors.New("TOKEN_ENCRYPTION_KEY must be 64 hex characters")
)

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER %q is not postgres or sqlite", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return ErrMissingDSN
	}
	if c.Server.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if _, err := c.Credentials.Key(); err != nil {
		return err
	}

	switch c.Scheduler.Trigger {
	case TriggerHTTP:
		if c.Server.CronSecret == "" {
			return errors.New("CRON_SECRET is required in http trigger mode")
		}
	case TriggerCron:
	case TriggerAsynq:
		if !c.Redis.Enabled {
			return errors.New("asynq trigger mode needs REDIS_ENABLED")
		}
	default:
		return fmt.Errorf("TRIGGER_MODE %q is not http, cron or asynq", c.Scheduler.Trigger)
	}

	s := c.Scheduler
	if s.Workers < 1 {
		return errors.New("DISPATCH_WORKERS must be at least 1")
	}
	if s.AdapterTimeout <= 0 || s.RunDeadline <= 0 {
		return errors.New("ADAPTER_TIMEOUT and DISPATCH_RUN_DEADLINE must be positive")
	}
	if s.ClaimLease < s.AdapterTimeout {
		return errors.New("CLAIM_LEASE must not be shorter than ADAPTER_TIMEOUT")
	}
	if s.RetryTransientMaxAttempts < 0 {
		return errors.New("RETRY_TRANSIENT_MAX_ATTEMPTS must not be negative")
	}
	if s.RetryTransientMaxAttempts > 0 && s.RetryTransientBackoff <= 0 {
		return errors.New("RETRY_TRANSIENT_BACKOFF must be positive when retries are enabled")
	}
	if c.Credentials.RefreshConcurrency < 1 {
		return errors.New("TOKEN_REFRESH_CONCURRENCY must be at least 1")
	}
	return nil
}

// Key decodes the token encryption key.
func (c Credentials) Key() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil || len(key) != 32 {
		return nil, ErrEncryptionKey
	}
	return key, nil
}
