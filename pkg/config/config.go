package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration, loaded once from the
// environment at startup.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Bus      BusConfig
	Provider ProviderConfig
	Media    MediaConfig
	Spam     SpamConfig
	Internal InternalConfig
	JWT      JWTConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	PublicBaseURL   string
}

// DatabaseConfig configures the Postgres store.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	URL             string
}

// GetDSN returns the connection string, preferring DATABASE_URL when set.
func (c *DatabaseConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig configures the read-through cache used by sessionmgr.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// BusConfig configures the RabbitMQ connection and routing (spec.md §4.4, §6).
type BusConfig struct {
	URL             string
	Exchange        string
	ReconnectBase   time.Duration
	ReconnectMax    time.Duration
	ReconnectJitter float64
	PublishTimeout  time.Duration
}

// ProviderConfig configures the upstream WhatsApp provider (spec.md §4.2).
type ProviderConfig struct {
	GatewayBaseURL     string
	SupportBaseURL     string
	SupportInternalKey string
	RequestTimeout     time.Duration
	SessionOpTimeout   time.Duration
	MediaTimeout       time.Duration
	WebhookVerifyToken string
	DryRun             bool
	DefaultVillageID   string
}

// MediaConfig configures where the Ingest stores fetched attachments
// (spec.md §6, expanded to S3 in SPEC_FULL.md §4).
type MediaConfig struct {
	StorageBucket  string
	InternalURLFmt string
	PublicURLFmt   string
}

// SpamConfig configures SpamGuard thresholds (spec.md §4.5, §6).
type SpamConfig struct {
	Enabled         bool
	MaxIdentical    int
	BanDuration     time.Duration
	RateMaxMessages int
	RateWindow      time.Duration
	GCInterval      time.Duration
	InFlightMaxAge  time.Duration
}

// InternalConfig configures the internal API and Forwarder retry policy.
type InternalConfig struct {
	APIKey              string
	PublishRetryDelay   time.Duration
	PendingJanitorEvery time.Duration
	PendingMaxAge       time.Duration
}

// JWTConfig configures the short-lived service token signed by
// sessionmgr.TokenService. No outbound call in the gateway presents it.
type JWTConfig struct {
	SigningKey string
	TTL        time.Duration
	Issuer     string
}

// Load reads the configuration from the environment. Required variables
// missing entirely is a startup failure; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
			PublicBaseURL:   getEnv("PUBLIC_CHANNEL_BASE_URL", ""),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", ""),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "govconnect"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Bus: BusConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			Exchange:        getEnv("BUS_EXCHANGE", "govconnect.events"),
			ReconnectBase:   getDurationEnv("BUS_RECONNECT_BASE", 500*time.Millisecond),
			ReconnectMax:    getDurationEnv("BUS_RECONNECT_MAX", 30*time.Second),
			ReconnectJitter: getFloatEnv("BUS_RECONNECT_JITTER", 0.2),
			PublishTimeout:  getDurationEnv("BUS_PUBLISH_TIMEOUT", 5*time.Second),
		},
		Provider: ProviderConfig{
			GatewayBaseURL:     getEnv("WA_API_URL", ""),
			SupportBaseURL:     getEnv("WA_SUPPORT_URL", ""),
			SupportInternalKey: lastColonField(getEnv("WA_SUPPORT_INTERNAL_API_KEY", "")),
			RequestTimeout:     getDurationEnv("WA_REQUEST_TIMEOUT", 10*time.Second),
			SessionOpTimeout:   getDurationEnv("WA_SESSION_TIMEOUT", 30*time.Second),
			MediaTimeout:       getDurationEnv("WA_MEDIA_TIMEOUT", 60*time.Second),
			WebhookVerifyToken: getEnv("WA_WEBHOOK_VERIFY_TOKEN", ""),
			DryRun:             getBoolEnv("WA_DRY_RUN", false),
			DefaultVillageID:   getEnv("DEFAULT_VILLAGE_ID", "unknown"),
		},
		Media: MediaConfig{
			StorageBucket:  getEnv("MEDIA_STORAGE_PATH", "govconnect-media"),
			InternalURLFmt: getEnv("MEDIA_INTERNAL_URL", "http://media-internal/%s"),
			PublicURLFmt:   getEnv("MEDIA_PUBLIC_URL", "https://media.govconnect.example/%s"),
		},
		Spam: SpamConfig{
			Enabled:         getBoolEnv("SPAM_GUARD_ENABLED", true),
			MaxIdentical:    getIntEnv("SPAM_GUARD_MAX_IDENTICAL", 5),
			RateMaxMessages: getIntEnv("SPAM_RATE_MAX_MESSAGES", 10),
			GCInterval:      10 * time.Minute,
			InFlightMaxAge:  5 * time.Minute,
		},
		Internal: InternalConfig{
			APIKey:              getEnv("INTERNAL_API_KEY", ""),
			PendingJanitorEvery: 1 * time.Hour,
			PendingMaxAge:       24 * time.Hour,
		},
		JWT: JWTConfig{
			SigningKey: getEnv("JWT_SIGNING_KEY", "dev-insecure-signing-key"),
			TTL:        getDurationEnv("JWT_TTL", 5*time.Minute),
			Issuer:     getEnv("JWT_ISSUER", "govconnect-channel-gateway"),
		},
	}

	cfg.Spam.BanDuration = getMillisEnv("SPAM_GUARD_BAN_DURATION_MS", 60000)
	cfg.Spam.RateWindow = getMillisEnv("SPAM_RATE_WINDOW_MS", 10000)
	cfg.Internal.PublishRetryDelay = getMillisEnv("MESSAGE_BATCH_PUBLISH_RETRY_DELAY_MS", 5000)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the variables spec.md §6 marks as required.
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Bus.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required")
	}
	if c.Internal.APIKey == "" {
		return fmt.Errorf("INTERNAL_API_KEY is required")
	}
	return nil
}

// lastColonField implements spec.md §6's "source:key" support-key form:
// only the key portion (after the last colon) is ever sent upstream.
func lastColonField(v string) string {
	if idx := strings.LastIndex(v, ":"); idx >= 0 {
		return v[idx+1:]
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getMillisEnv parses a bare-integer-milliseconds variable, the shape
// every SPAM_*_MS / *_RETRY_DELAY_MS variable in spec.md §6 uses.
func getMillisEnv(key string, defaultMillis int) time.Duration {
	ms := getIntEnv(key, defaultMillis)
	return time.Duration(ms) * time.Millisecond
}
