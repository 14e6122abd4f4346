package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Reclamos     ReclamosConfig
	WhatsApp     WhatsAppConfig
	Notification NotificationConfig
	Sync         SyncConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSAllowedOrigins    string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// ReclamosConfig points at the external complaints API.
type ReclamosConfig struct {
	BaseURL         string
	TimeoutMillis   int
	JWTSecret       string
	JWTIssuer       string
	TokenTTLSeconds int
}

// WhatsAppConfig points at the messaging provider.
type WhatsAppConfig struct {
	BaseURL       string
	Token         string
	LanguageCode  string
	TimeoutMillis int
}

// NotificationConfig controls complainant notifications.
type NotificationConfig struct {
	TemplateAssigned   string
	TemplateInProgress string
	TemplateCompleted  string
	CountryCode        string
	QueueEnabled       bool
	Stream             string
	Group              string
	Consumer           string
	MaxAttempts        int
	TimeoutMillis      int
	ReclaimSeconds     int
	ClaimIdleSeconds   int
}

// SyncConfig controls the outbox retry worker.
type SyncConfig struct {
	RetryIntervalSeconds int
	BatchSize            int
	MaxAttempts          int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	hostname, _ := os.Hostname()

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "cuadrilla-dispatch"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 15),
			CORSAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Reclamos: ReclamosConfig{
			BaseURL:         getEnv("RECLAMOS_API_URL", "http://localhost:3001"),
			TimeoutMillis:   getEnvAsInt("RECLAMOS_API_TIMEOUT_MS", 5000),
			JWTSecret:       os.Getenv("RECLAMOS_API_JWT_SECRET"),
			JWTIssuer:       getEnv("RECLAMOS_API_JWT_ISSUER", "cuadrilla-dispatch"),
			TokenTTLSeconds: getEnvAsInt("RECLAMOS_API_TOKEN_TTL_SECONDS", 300),
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:       getEnv("WHATSAPP_API_URL", ""),
			Token:         os.Getenv("WHATSAPP_API_TOKEN"),
			LanguageCode:  getEnv("WHATSAPP_LANGUAGE_CODE", "es_AR"),
			TimeoutMillis: getEnvAsInt("WHATSAPP_API_TIMEOUT_MS", 5000),
		},
		Notification: NotificationConfig{
			TemplateAssigned:   getEnv("NOTIFY_TEMPLATE_ASSIGNED", "reclamo_asignado"),
			TemplateInProgress: getEnv("NOTIFY_TEMPLATE_IN_PROGRESS", "reclamo_en_proceso"),
			TemplateCompleted:  getEnv("NOTIFY_TEMPLATE_COMPLETED", "reclamo_completado"),
			CountryCode:        getEnv("NOTIFY_COUNTRY_CODE", "54"),
			QueueEnabled:       getEnvAsBool("NOTIFY_QUEUE_ENABLED", false),
			Stream:             getEnv("NOTIFY_STREAM", "dispatch_notifications"),
			Group:              getEnv("NOTIFY_STREAM_GROUP", "notifiers"),
			Consumer:           getEnv("NOTIFY_STREAM_CONSUMER", hostname),
			MaxAttempts:        getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
			TimeoutMillis:      getEnvAsInt("NOTIFY_TIMEOUT_MS", 10000),
			ReclaimSeconds:     getEnvAsInt("NOTIFY_RECLAIM_INTERVAL_SECONDS", 30),
			ClaimIdleSeconds:   getEnvAsInt("NOTIFY_CLAIM_MIN_IDLE_SECONDS", 60),
		},
		Sync: SyncConfig{
			RetryIntervalSeconds: getEnvAsInt("SYNC_RETRY_INTERVAL_SECONDS", 30),
			BatchSize:            getEnvAsInt("SYNC_RETRY_BATCH_SIZE", 50),
			MaxAttempts:          getEnvAsInt("SYNC_MAX_ATTEMPTS", 10),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func (r ReclamosConfig) Timeout() time.Duration {
	return millis(r.TimeoutMillis)
}

func (r ReclamosConfig) TokenTTL() time.Duration {
	return time.Duration(r.TokenTTLSeconds) * time.Second
}

func (w WhatsAppConfig) Timeout() time.Duration {
	return millis(w.TimeoutMillis)
}

// Enabled reports whether a provider endpoint is configured.
func (w WhatsAppConfig) Enabled() bool {
	return w.BaseURL != ""
}

func (n NotificationConfig) Timeout() time.Duration {
	return millis(n.TimeoutMillis)
}

// ReclaimInterval is how often stranded stream entries are claimed back.
func (n NotificationConfig) ReclaimInterval() time.Duration {
	return seconds(n.ReclaimSeconds)
}

// ClaimMinIdle is how long an entry must sit unacked before it is claimed.
func (n NotificationConfig) ClaimMinIdle() time.Duration {
	return seconds(n.ClaimIdleSeconds)
}

func (s SyncConfig) RetryInterval() time.Duration {
	if s.RetryIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(s.RetryIntervalSeconds) * time.Second
}

func seconds(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}

func millis(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
