package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env (an optional .env file is loaded first).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Twilio   TwilioConfig
	Telegram TelegramConfig
	Session  SessionConfig
	Auth     AuthConfig
	Flow     FlowConfig
}

type AppConfig struct {
	Env  string
	Port int

	// BaseURL is the public URL Twilio uses to reach the voice webhooks.
	BaseURL string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type TelegramConfig struct {
	BotToken string

	// BroadcastChatID receives all notifications not bound to a specific chat.
	BroadcastChatID int64

	// PollInterval is the cadence of the getUpdates loop.
	PollInterval time.Duration
}

// SessionBackend selects the session snapshot repository.
type SessionBackend string

const (
	SessionBackendFile     SessionBackend = "file"
	SessionBackendRedis    SessionBackend = "redis"
	SessionBackendPostgres SessionBackend = "postgres"
)

type SessionConfig struct {
	Backend SessionBackend

	// File backend.
	FilePath string

	// Redis backend.
	RedisHost string
	RedisPort int

	// Postgres backend.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration

	// OperatorPassword gates token issuance for the admin surface.
	OperatorPassword string
}

type FlowConfig struct {
	RetryLimit      int
	CorrectionLimit int
	WaitSeconds     int

	NotifySuppressWindow time.Duration
	NotifyGateTTL        time.Duration
}

func Load() (Config, error) {
	// Local env files are a convenience; missing files are not an error.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_URL")), "/")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))

	c.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	{
		raw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID"))
		if raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				parseErrs = append(parseErrs, fmt.Errorf("TELEGRAM_CHAT_ID must be an integer, got %q", raw))
			}
			c.Telegram.BroadcastChatID = n
		}
	}
	c.Telegram.PollInterval = durationOr("POLL_INTERVAL_SECONDS", time.Second)

	c.Session.Backend = SessionBackend(strings.TrimSpace(os.Getenv("SESSION_BACKEND")))
	if c.Session.Backend == "" {
		c.Session.Backend = SessionBackendFile
	}
	c.Session.FilePath = strings.TrimSpace(os.Getenv("SESSION_FILE"))
	if c.Session.FilePath == "" {
		c.Session.FilePath = "sessions.json"
	}
	c.Session.RedisHost = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Session.RedisPort = intOr("REDIS_PORT", 6379)
	c.Session.DBHost = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.Session.DBPort = intOr("DB_PORT", 5432)
	c.Session.DBUser = strings.TrimSpace(os.Getenv("DB_USER"))
	c.Session.DBPassword = os.Getenv("DB_PASSWORD")
	c.Session.DBName = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.Session.DBSSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.AccessTokenTTL = durationOr("JWT_ACCESS_TTL", 0)
	c.Auth.OperatorPassword = os.Getenv("OPERATOR_PASSWORD")

	c.Flow.RetryLimit = intOr("FLOW_RETRY_LIMIT", 8)
	c.Flow.CorrectionLimit = intOr("FLOW_CORRECTION_LIMIT", 3)
	c.Flow.WaitSeconds = intOr("FLOW_WAIT_SECONDS", 10)
	c.Flow.NotifySuppressWindow = durationOr("NOTIFY_SUPPRESS_WINDOW", 30*time.Second)
	c.Flow.NotifyGateTTL = durationOr("NOTIFY_GATE_TTL", 5*time.Minute)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is required (public URL for Twilio webhooks)"))
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.FromNumber == "" {
		errs = append(errs, errors.New("TWILIO_PHONE_NUMBER is required"))
	}

	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.Telegram.BroadcastChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required"))
	}
	if c.Telegram.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL_SECONDS must be positive"))
	}

	switch c.Session.Backend {
	case SessionBackendFile:
		if c.Session.FilePath == "" {
			errs = append(errs, errors.New("SESSION_FILE is required for the file backend"))
		}
	case SessionBackendRedis:
		if c.Session.RedisHost == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for the redis backend"))
		}
		if c.Session.RedisPort <= 0 || c.Session.RedisPort > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Session.RedisPort))
		}
	case SessionBackendPostgres:
		if c.Session.DBHost == "" {
			errs = append(errs, errors.New("DB_HOST is required for the postgres backend"))
		}
		if c.Session.DBUser == "" {
			errs = append(errs, errors.New("DB_USER is required for the postgres backend"))
		}
		if c.Session.DBName == "" {
			errs = append(errs, errors.New("DB_NAME is required for the postgres backend"))
		}
		if c.Session.DBSSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			}
		} else if !isValidSSLMode(c.Session.DBSSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.Session.DBSSLMode))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND must be one of file, redis, postgres, got %q", c.Session.Backend))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.OperatorPassword == "" {
		errs = append(errs, errors.New("OPERATOR_PASSWORD is required"))
	}

	if c.Flow.RetryLimit <= 0 {
		errs = append(errs, errors.New("FLOW_RETRY_LIMIT must be positive"))
	}
	if c.Flow.CorrectionLimit <= 0 {
		errs = append(errs, errors.New("FLOW_CORRECTION_LIMIT must be positive"))
	}
	if c.Flow.WaitSeconds <= 0 {
		errs = append(errs, errors.New("FLOW_WAIT_SECONDS must be positive"))
	}
	if c.Flow.NotifySuppressWindow <= 0 || c.Flow.NotifyGateTTL <= 0 {
		errs = append(errs, errors.New("notify window and gate TTL must be positive"))
	}
	if c.Flow.NotifyGateTTL < c.Flow.NotifySuppressWindow {
		errs = append(errs, errors.New("NOTIFY_GATE_TTL must not be shorter than NOTIFY_SUPPRESS_WINDOW"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool { return c.App.Env == "production" }

func (c Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.App.Port) }

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Session.RedisHost, c.Session.RedisPort)
}

func (c Config) PostgresDSN() string {
	sslMode := c.Session.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Session.DBHost, c.Session.DBPort, c.Session.DBUser, c.Session.DBPassword, c.Session.DBName, sslMode)
}

func isValidEnv(env string) bool {
	switch env {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(mode string) bool {
	switch mode {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func mustInt(key string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return n, nil
}

func intOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// durationOr accepts either a Go duration string ("30s") or a bare number of
// seconds, matching how the deployment env files were written.
func durationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		return 0, append(errs, err)
	}
	return n, errs
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
