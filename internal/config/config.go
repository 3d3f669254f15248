package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Lockout policies applied when an account reaches the failed-attempt limit
const (
	LockoutPolicyLock   = "lock"
	LockoutPolicyDelete = "delete"
)

// Notification providers for OTP delivery
const (
	NotifyProviderSES  = "ses"
	NotifyProviderSMTP = "smtp"
	NotifyProviderAMQP = "amqp"
	NotifyProviderLog  = "log"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	OTP      OTPConfig
	Notify   NotifyConfig
	Redis    RedisConfig
	Sentry   SentryConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	QueryTimeout      time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port                   string
	Env                    string
	LogLevel               string
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	IdleTimeout            time.Duration
	RequestTimeout         time.Duration
	TrustedProxies         []string
	AuthRateLimitPerMinute int
	OTPRateLimitPerMinute  int
}

type AuthConfig struct {
	AccessTokenSecret    string
	AuxTokenSecret       string
	AccessTokenTTL       time.Duration
	AuxTokenTTL          time.Duration
	RefreshTokenTTL      time.Duration
	RefreshTokenRotation bool
	MaxFailedAttempts    int
	LockoutPolicy        string
	BcryptCost           int
	TimingDelayBase      time.Duration
	TimingDelayRandom    time.Duration
	CleanupInterval      time.Duration
}

type OTPConfig struct {
	TTL               time.Duration
	Digits            int
	Retention         time.Duration
	MaxVerifyAttempts int
	VerifyWindow      time.Duration
}

type NotifyConfig struct {
	Provider     string
	FromAddress  string
	AppName      string
	Timeout      time.Duration
	AWSRegion    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	AMQPURL      string
	AMQPQueue    string
}

// RedisConfig is optional; an empty Addr disables the OTP verification limiter
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SentryConfig is optional; an empty DSN disables error reporting
type SentryConfig struct {
	DSN              string
	TracesSampleRate float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	database, err := loadDatabase()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: *database,
		Server: ServerConfig{
			Port:                   getEnv("PORT", "8080"),
			Env:                    env,
			LogLevel:               getEnv("LOG_LEVEL", "info"),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:            getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:         getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			TrustedProxies:         getEnvAsList("TRUSTED_PROXIES"),
			AuthRateLimitPerMinute: getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
			OTPRateLimitPerMinute:  getEnvAsInt("OTP_RATE_LIMIT_PER_MINUTE", 5),
		},
		Auth: AuthConfig{
			AccessTokenSecret:    getEnv("ACCESS_TOKEN_SECRET", ""),
			AuxTokenSecret:       getEnv("AUX_TOKEN_SECRET", ""),
			AccessTokenTTL:       getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
			AuxTokenTTL:          getEnvAsDuration("AUX_TOKEN_TTL", 30*24*time.Hour),
			RefreshTokenTTL:      getEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			RefreshTokenRotation: getEnvAsBool("REFRESH_TOKEN_ROTATION", false),
			MaxFailedAttempts:    getEnvAsInt("LOGIN_MAX_FAILED_ATTEMPTS", 5),
			LockoutPolicy:        strings.ToLower(getEnv("LOCKOUT_POLICY", LockoutPolicyLock)),
			BcryptCost:           getEnvAsInt("BCRYPT_COST", 12),
			TimingDelayBase:      getEnvAsDuration("TIMING_DELAY_BASE", 250*time.Millisecond),
			TimingDelayRandom:    getEnvAsDuration("TIMING_DELAY_RANDOM", 100*time.Millisecond),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
		},
		OTP: OTPConfig{
			TTL:               getEnvAsDuration("OTP_TTL", 60*time.Second),
			Digits:            6,
			Retention:         getEnvAsDuration("OTP_RETENTION", 30*24*time.Hour),
			MaxVerifyAttempts: getEnvAsInt("OTP_MAX_VERIFY_ATTEMPTS", 5),
			VerifyWindow:      getEnvAsDuration("OTP_VERIFY_WINDOW", 15*time.Minute),
		},
		Notify: NotifyConfig{
			Provider:     strings.ToLower(getEnv("NOTIFY_PROVIDER", NotifyProviderLog)),
			FromAddress:  getEnv("NOTIFY_FROM_ADDRESS", "no-reply@localhost"),
			AppName:      getEnv("APP_NAME", "Warden"),
			Timeout:      getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			AMQPURL:      getEnv("AMQP_URL", ""),
			AMQPQueue:    getEnv("AMQP_QUEUE", "otp_emails"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			TracesSampleRate: getEnvAsFloat("SENTRY_TRACES_SAMPLE_RATE", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase loads only the database settings, for tools such as the
// migration command that need no signing secrets
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()
	return loadDatabase()
}

func loadDatabase() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "warden"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		QueryTimeout:      getEnvAsDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", false),
	}

	if cfg.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	env := c.Server.Env

	if err := validateSecret("ACCESS_TOKEN_SECRET", c.Auth.AccessTokenSecret, env); err != nil {
		return err
	}
	if err := validateSecret("AUX_TOKEN_SECRET", c.Auth.AuxTokenSecret, env); err != nil {
		return err
	}
	if c.Auth.AccessTokenSecret == c.Auth.AuxTokenSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and AUX_TOKEN_SECRET must differ")
	}

	if c.Auth.MaxFailedAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_FAILED_ATTEMPTS must be at least 1")
	}
	switch c.Auth.LockoutPolicy {
	case LockoutPolicyLock, LockoutPolicyDelete:
	default:
		return fmt.Errorf("LOCKOUT_POLICY must be %q or %q (got %q)", LockoutPolicyLock, LockoutPolicyDelete, c.Auth.LockoutPolicy)
	}

	if c.OTP.TTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}

	switch c.Notify.Provider {
	case NotifyProviderSES, NotifyProviderLog:
	case NotifyProviderSMTP:
		if c.Notify.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when NOTIFY_PROVIDER=smtp")
		}
	case NotifyProviderAMQP:
		if c.Notify.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when NOTIFY_PROVIDER=amqp")
		}
	default:
		return fmt.Errorf("NOTIFY_PROVIDER must be one of ses, smtp, amqp, log (got %q)", c.Notify.Provider)
	}

	if env == "production" && c.Notify.Provider == NotifyProviderLog {
		return fmt.Errorf("NOTIFY_PROVIDER=log is not allowed in production")
	}

	return nil
}

// validateSecret enforces minimum strength for a signing secret
func validateSecret(name, secret, env string) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}

	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Repeat(weak, len(secretLower)/len(weak)) == secretLower {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as lib/pq and goose expect
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	items := strings.Split(value, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
