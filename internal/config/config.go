package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Realtime backends
const (
	RealtimeMemory = "memory"
	RealtimeRedis  = "redis"
	RealtimeNATS   = "nats"
)

const defaultJWTSecret = "your_jwt_secret_minimum_32_chars_here_change_this"

type Config struct {
	// Telegram notifications (optional)
	BotToken string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Security
	JWTSecret string

	// Application
	AppEnv   string
	AppPort  string
	LogLevel string

	// Rate Limiting
	RateLimitPerUser int
	RateLimitPerIP   int

	// Matching
	BlindDateTTLHours    int
	PairingWaitMinutes   int
	SweepIntervalSeconds int
	MessageMaxLength     int

	// Realtime transport
	RealtimeBackend string
	RedisAddr       string
	NATSURL         string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		BotToken:   getEnv("BOT_TOKEN", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "campus"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "campus_match"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET_KEY", ""),

		AppEnv:   getEnv("APP_ENV", "development"),
		AppPort:  getEnv("APP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RateLimitPerUser: getEnvInt("RATE_LIMIT_PER_USER", 20),
		RateLimitPerIP:   getEnvInt("RATE_LIMIT_PER_IP", 100),

		BlindDateTTLHours:    getEnvInt("BLIND_DATE_TTL_HOURS", 24),
		PairingWaitMinutes:   getEnvInt("PAIRING_WAIT_MINUTES", 10),
		SweepIntervalSeconds: getEnvInt("SWEEP_INTERVAL_SECONDS", 60),
		MessageMaxLength:     getEnvInt("MESSAGE_MAX_LENGTH", 1000),

		RealtimeBackend: getEnv("REALTIME_BACKEND", RealtimeMemory),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		NATSURL:         getEnv("NATS_URL", "nats://localhost:4222"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters")
	}
	if c.BlindDateTTLHours <= 0 {
		return fmt.Errorf("BLIND_DATE_TTL_HOURS must be positive")
	}
	if c.PairingWaitMinutes <= 0 {
		return fmt.Errorf("PAIRING_WAIT_MINUTES must be positive")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	if c.MessageMaxLength <= 0 {
		return fmt.Errorf("MESSAGE_MAX_LENGTH must be positive")
	}
	switch c.RealtimeBackend {
	case RealtimeMemory, RealtimeRedis, RealtimeNATS:
	default:
		return fmt.Errorf("REALTIME_BACKEND must be one of memory, redis, nats")
	}
	return nil
}

func (c *Config) ValidateProductionSecurity() error {
	if c.AppEnv != "production" {
		return nil
	}

	if c.DBSSLMode != "require" {
		return fmt.Errorf("DB_SSLMODE must be 'require' in production")
	}
	if c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET_KEY must be changed from default in production")
	}
	// The in-memory broker only fans out inside one process.
	if c.RealtimeBackend == RealtimeMemory {
		return fmt.Errorf("REALTIME_BACKEND must be redis or nats in production")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) GetBlindDateTTL() time.Duration {
	return time.Duration(c.BlindDateTTLHours) * time.Hour
}

func (c *Config) GetPairingWait() time.Duration {
	return time.Duration(c.PairingWaitMinutes) * time.Minute
}

func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
