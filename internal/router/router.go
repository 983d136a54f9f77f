// Package router registers the HTTP routes of the seat locking gateway.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/handler"
	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Locks   *handler.SeatLockHandler
	Booking *handler.BookingHandler
	Health  *handler.HealthHandler
}

// RegisterRoutes mounts health checks, the anonymous lock endpoints and the
// authenticated booking endpoints.  limiter wraps the lock endpoints; pass
// nil to disable rate limiting.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)
	if h.Health != nil {
		e.GET("/readyz", h.Health.Ready)
	}

	// Seat selection needs no account: a session id minted here is enough.
	v1 := e.Group("/v1")
	if limiter != nil {
		v1.Use(limiter)
	}
	v1.POST("/lock-sessions", h.Locks.CreateSession)
	v1.DELETE("/lock-sessions/:session_id/locks", h.Locks.UnlockAll)
	v1.GET("/shows/:id/locks", h.Locks.Status)
	v1.POST("/shows/:id/locks", h.Locks.Lock)
	v1.DELETE("/shows/:id/locks/:seat_code", h.Locks.Unlock)

	if h.Booking != nil {
		auth := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole("CUSTOMER")}
		v1.POST("/shows/:id/confirm", h.Booking.Confirm, auth...)
		v1.DELETE("/reservations/:id", h.Booking.Cancel, auth...)
	}
}
