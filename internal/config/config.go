// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/database"
)

// Lock store backends selectable with LOCK_STORE.
const (
	LockStoreMySQL = "mysql"
	LockStoreRedis = "redis"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env       string          // APP_ENV (dev, test, prod)
	Port      string          // APP_PORT
	DB        database.Config // DB_USER, DB_PASS, DB_HOST, DB_PORT, DB_NAME
	JWTSecret string          // JWT_SECRET, verifies customer tokens on booking routes
	LogLevel  string          // LOG_LEVEL

	LockStore     string        // LOCK_STORE: mysql (default) or redis
	LockLease     time.Duration // LOCK_LEASE: how long a seat lock lives without refresh
	SweepInterval time.Duration // LOCK_SWEEP_INTERVAL
	SweepBatch    int           // LOCK_SWEEP_BATCH: rows deleted per sweep statement
	RedisPrefix   string        // LOCK_REDIS_PREFIX: key namespace of the redis lock store

	EventsEnabled bool   // EVENTS_ENABLED: publish seat and booking events to RabbitMQ
	AuditLogDir   string // AUDIT_LOG_DIR: when set, run the audit consumer writing here

	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing or invalid
// values cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),
		DB: database.Config{
			User: must("DB_USER"),
			Pass: os.Getenv("DB_PASS"), // empty allowed
			Host: must("DB_HOST"),
			Port: must("DB_PORT"),
			Name: must("DB_NAME"),
		},
		JWTSecret: must("JWT_SECRET"),
		LogLevel:  getenv("LOG_LEVEL", "info"),

		LockStore:     strings.ToLower(getenv("LOCK_STORE", LockStoreMySQL)),
		LockLease:     envDur("LOCK_LEASE", 5*time.Minute),
		SweepInterval: envDur("LOCK_SWEEP_INTERVAL", 30*time.Second),
		SweepBatch:    envInt("LOCK_SWEEP_BATCH", 500),
		RedisPrefix:   getenv("LOCK_REDIS_PREFIX", "seatlock"),

		EventsEnabled: envBool("EVENTS_ENABLED", false),
		AuditLogDir:   os.Getenv("AUDIT_LOG_DIR"),

		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if err := cfg.validate(); err != "" {
		log.Fatalf("invalid configuration: %s", err)
	}
	return cfg
}

func (c Config) validate() string {
	switch {
	case c.LockStore != LockStoreMySQL && c.LockStore != LockStoreRedis:
		return "LOCK_STORE must be mysql or redis, got " + strconv.Quote(c.LockStore)
	case c.LockLease < time.Second:
		return "LOCK_LEASE must be at least 1s"
	case c.SweepInterval <= 0:
		return "LOCK_SWEEP_INTERVAL must be positive"
	case c.SweepBatch < 1:
		return "LOCK_SWEEP_BATCH must be at least 1"
	}
	return ""
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
