package config

import "time"

type Config struct {
	Service  *ServiceConfig
	Logger   *LoggerConfig
	Postgres *PostgresConfig
	Redis    *RedisConfig
	Auth     *AuthConfig
	Realtime *RealtimeConfig
	Tracer   *TracerConfig
	Alerts   *AlertsConfig
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	ProfileTTL time.Duration
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type RealtimeConfig struct {
	AuthTimeout       time.Duration
	SendBuffer        int
	ReconcileInterval time.Duration
}

type TracerConfig struct {
	// Endpoint of the OTLP gRPC collector. Empty disables export.
	Endpoint string
}

type AlertsConfig struct {
	TelegramToken  string
	TelegramChatID int64
}

// Load reads the configuration from the environment. Call godotenv.Load first
// if a .env file should be honoured.
func Load() *Config {
	return &Config{
		Service: &ServiceConfig{
			Name: getEnv("SERVICE_NAME", "anonchat-backend"),
			Env:  getEnv("SERVICE_ENV", "development"),
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Logger: &LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Postgres: &PostgresConfig{
			DSN:             getEnv("DATABASE_URL", "host=localhost user=user password=password dbname=anonchat port=5432 sslmode=disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_LIFETIME", 15*time.Minute),
		},
		Redis: &RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			ProfileTTL: getEnvDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		},
		Auth: &AuthConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			TokenTTL: getEnvDuration("JWT_TTL", DefaultTokenTTL),
		},
		Realtime: &RealtimeConfig{
			AuthTimeout:       getEnvDuration("WS_AUTH_TIMEOUT", DefaultAuthTimeout),
			SendBuffer:        getEnvInt("WS_SEND_BUFFER", DefaultSendBuffer),
			ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
		},
		Tracer: &TracerConfig{
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
		Alerts: &AlertsConfig{
			TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID: getEnvInt64("TELEGRAM_ALERT_CHAT_ID", 0),
		},
	}
}
