package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// DBPinger is satisfied by *sql.DB.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	DB    DBPinger
	Redis RedisPinger // nil when Redis is not configured
}

// Health is the liveness check.  It only proves the process serves HTTP.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready pings every backing store with a short timeout and answers 503
// when any of them fails, listing each dependency's state.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := echo.Map{}
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			checks["mysql"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["mysql"] = "ok"
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}
	return c.JSON(status, echo.Map{"ready": status == http.StatusOK, "checks": checks})
}
