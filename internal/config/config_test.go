package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV":    "dev",
		"APP_PORT":   "8080",
		"DB_USER":    "cinema",
		"DB_HOST":    "127.0.0.1",
		"DB_PORT":    "3306",
		"DB_NAME":    "cinema",
		"JWT_SECRET": "s3cret",
	} {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg := Load()
	assert.Equal(t, LockStoreMySQL, cfg.LockStore)
	assert.Equal(t, 5*time.Minute, cfg.LockLease)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 500, cfg.SweepBatch)
	assert.Equal(t, "seatlock", cfg.RedisPrefix)
	assert.False(t, cfg.EventsEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "cinema", cfg.DB.Name)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOCK_STORE", "Redis")
	t.Setenv("LOCK_LEASE", "90s")
	t.Setenv("LOCK_SWEEP_BATCH", "50")
	t.Setenv("EVENTS_ENABLED", "yes")
	t.Setenv("AUDIT_LOG_DIR", "/var/log/cinema")

	cfg := Load()
	assert.Equal(t, LockStoreRedis, cfg.LockStore)
	assert.Equal(t, 90*time.Second, cfg.LockLease)
	assert.Equal(t, 50, cfg.SweepBatch)
	assert.True(t, cfg.EventsEnabled)
	assert.Equal(t, "/var/log/cinema", cfg.AuditLogDir)
	assert.False(t, cfg.IsDev())
}

func TestValidate(t *testing.T) {
	ok := Config{LockStore: LockStoreMySQL, LockLease: time.Minute, SweepInterval: time.Second, SweepBatch: 1}
	assert.Empty(t, ok.validate())

	bad := ok
	bad.LockStore = "memcached"
	assert.Contains(t, bad.validate(), "LOCK_STORE")

	bad = ok
	bad.LockLease = 500 * time.Millisecond
	assert.Contains(t, bad.validate(), "LOCK_LEASE")

	bad = ok
	bad.SweepBatch = 0
	assert.Contains(t, bad.validate(), "LOCK_SWEEP_BATCH")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "2m")
	t.Setenv("X_BOOL", "off")

	assert.Equal(t, 7, envInt("X_INT", 7), "unparsable values fall back")
	assert.Equal(t, 2*time.Minute, envDur("X_DUR", time.Second))
	assert.False(t, envBool("X_BOOL", true))
	assert.True(t, envBool("X_UNSET", true))
	assert.Equal(t, "d", getenv("X_UNSET", "d"))
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	assert.True(t, c.Enabled)
	assert.Equal(t, 1, c.Capacity, "capacity is clamped")
	assert.Equal(t, 1, c.RefillTokens)
	assert.Equal(t, 2*time.Second, c.RefillInterval)
	assert.Equal(t, 10*time.Second, c.TTL, "ttl covers at least five refills")
	assert.Equal(t, "ip_session_route", c.KeyStrategy)
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	opts := RedisOptions()
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Nil(t, opts.TLSConfig)

	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TLS", "true")
	opts = RedisOptions()
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	require.NotNil(t, opts.TLSConfig)
}
