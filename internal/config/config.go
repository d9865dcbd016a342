package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/sirupsen/logrus"
)

// Config holds the process level configuration of the routing service.
// Provider, routing, feature and security settings live in the Manager.
type Config struct {
	// Server
	Port        string
	Environment string

	// Database holding the platform's payment transactions
	DatabaseURL string

	// Redis holding provider health signals
	RedisURL        string
	HealthKey       string
	HealthMaxAge    time.Duration
	HistoryTimeout  time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// NATS for volume alerts and fallback events
	NATSURL string

	// RBAC
	StaffServiceURL string

	// Directory holding routing.<environment>.yaml
	ConfigDir string
}

// databaseURL returns DATABASE_URL or assembles one from the DB_* variables
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("DB_USER", "postgres"),
		databasePassword(),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "tesseract_hub"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

// databasePassword reads the transaction store password from Secret Manager
// when USE_GCP_SECRET_MANAGER is set, otherwise from DB_PASSWORD
func databasePassword() string {
	fallback := getEnv("DB_PASSWORD", "password")
	if os.Getenv("USE_GCP_SECRET_MANAGER") != "true" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fetcher, err := secrets.NewEnvSecretFetcher(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Secret Manager unavailable, using DB_PASSWORD")
		return fallback
	}
	defer fetcher.Close()

	if password := secrets.LoadDatabasePassword(ctx, fetcher); password != "" && password != "password" {
		return password
	}
	logrus.Warn("Secret Manager returned no database password, using DB_PASSWORD")
	return fallback
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8094"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		DatabaseURL:     databaseURL(),
		RedisURL:        getEnv("REDIS_URL", "redis://redis.redis-marketplace.svc.cluster.local:6379/0"),
		HealthKey:       getEnv("HEALTH_KEY", "payment-routing:provider-health"),
		HealthMaxAge:    getEnvDuration("HEALTH_MAX_AGE", 15*time.Minute),
		HistoryTimeout:  getEnvDuration("HISTORY_TIMEOUT", 2*time.Second),
		BreakerFailures: uint32(getEnvInt("BREAKER_FAILURES", 5)),
		BreakerTimeout:  getEnvDuration("BREAKER_TIMEOUT", 30*time.Second),
		NATSURL:         getEnv("NATS_URL", "nats://nats.nats.svc.cluster.local:4222"),
		StaffServiceURL: getEnv("STAFF_SERVICE_URL", "http://staff-service:8080"),
		ConfigDir:       getEnv("CONFIG_DIR", "config"),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
