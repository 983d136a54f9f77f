package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/logger"
	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
)

// SeatLocker is the lock service as seen by the gateway.
type SeatLocker interface {
	LockSeat(ctx context.Context, showID uint64, seatCode, sessionID string) (service.LockResult, error)
	UnlockSeat(ctx context.Context, showID uint64, seatCode, sessionID string) (service.UnlockResult, error)
	UnlockAllSeats(ctx context.Context, sessionID string) (int64, error)
	GetLockedSeats(ctx context.Context, showID uint64, sessionID string) (service.SeatMap, error)
}

// SeatLockHandler exposes seat locking over HTTP.  Conflicts are answered
// with 409 and a machine readable code: seat_locked may be retried with
// another seat or after the holder's lease ends, seat_already_booked is
// final and the seat should leave the selectable set.
type SeatLockHandler struct {
	svc   SeatLocker
	log   *logger.Logger
	lease time.Duration
}

// NewSeatLockHandler constructs the handler.  lease is reported to clients
// minting a session so they can schedule refreshes.
func NewSeatLockHandler(svc SeatLocker, log *logger.Logger, lease time.Duration) *SeatLockHandler {
	if svc == nil {
		panic("nil lock service passed to NewSeatLockHandler")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &SeatLockHandler{svc: svc, log: log, lease: lease}
}

type lockSeatRequest struct {
	SeatCode  string `json:"seat_code" validate:"required,max=16"`
	SessionID string `json:"session_id" validate:"required,max=128"`
}

type lockSeatResponse struct {
	SeatID    uint64 `json:"seat_id"`
	SeatCode  string `json:"seat_code"`
	ExpiresAt string `json:"expires_at"`
	IsNewLock bool   `json:"is_new_lock"`
}

type seatMapResponse struct {
	Locked []string `json:"locked"`
	Mine   []string `json:"mine"`
	Booked []string `json:"booked"`
}

// CreateSession handles POST /v1/lock-sessions.  It mints an anonymous
// session id; no account is needed to select seats.
func (h *SeatLockHandler) CreateSession(c echo.Context) error {
	return c.JSON(http.StatusCreated, echo.Map{
		"session_id":    uuid.NewString(),
		"lease_seconds": int(h.lease / time.Second),
	})
}

// Lock handles POST /v1/shows/:id/locks with body {seat_code, session_id}.
// The session id may instead come from the X-Session-ID header.  Locking a
// seat the session already holds refreshes the lease (is_new_lock=false).
func (h *SeatLockHandler) Lock(c echo.Context) error {
	showID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var req lockSeatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		req.SessionID = middleware.SessionID(c)
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "fields": validationDetails(err)})
	}

	res, err := h.svc.LockSeat(c.Request().Context(), showID, req.SeatCode, req.SessionID)
	if err != nil {
		return h.fail(c, err)
	}
	switch res.Outcome {
	case service.OutcomeSeatLocked:
		return c.JSON(http.StatusConflict, echo.Map{
			"error":        "seat_locked",
			"message":      "seat is held by another session",
			"seat_code":    res.SeatCode,
			"retryable":    true,
			"locked_until": res.ExpiresAt.UTC().Format(time.RFC3339),
		})
	case service.OutcomeSeatAlreadyBooked:
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "seat_already_booked",
			"message":   "seat is already booked",
			"seat_code": res.SeatCode,
			"retryable": false,
		})
	}
	return c.JSON(http.StatusOK, lockSeatResponse{
		SeatID:    res.SeatID,
		SeatCode:  res.SeatCode,
		ExpiresAt: res.ExpiresAt.UTC().Format(time.RFC3339Nano),
		IsNewLock: res.IsNewLock,
	})
}

// Unlock handles DELETE /v1/shows/:id/locks/:seat_code?session_id=.  It
// succeeds whether or not the session held the seat.
func (h *SeatLockHandler) Unlock(c echo.Context) error {
	showID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	sessionID := middleware.SessionID(c)
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "fields": echo.Map{"session_id": "required"}})
	}
	res, err := h.svc.UnlockSeat(c.Request().Context(), showID, c.Param("seat_code"), sessionID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": res.Released})
}

// UnlockAll handles DELETE /v1/lock-sessions/:session_id/locks.
func (h *SeatLockHandler) UnlockAll(c echo.Context) error {
	n, err := h.svc.UnlockAllSeats(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unlocked_count": n})
}

// Status handles GET /v1/shows/:id/locks?session_id=.  Clients poll it to
// render seats taken by others; mine lets them tell their own seats apart.
func (h *SeatLockHandler) Status(c echo.Context) error {
	showID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	m, err := h.svc.GetLockedSeats(c.Request().Context(), showID, middleware.SessionID(c))
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, seatMapResponse{Locked: m.Locked, Mine: m.Mine, Booked: m.Booked})
}

// fail maps service errors that are not conflicts to a response.
func (h *SeatLockHandler) fail(c echo.Context, err error) error {
	return writeError(c, h.log, err)
}

func writeError(c echo.Context, log *logger.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, service.ErrNoActiveLocks):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no_active_locks", "message": err.Error()})
	case errors.Is(err, service.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show_not_found"})
	case errors.Is(err, service.ErrSeatNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "seat_not_found"})
	case errors.Is(err, service.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation_not_found"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrSeatAlreadyBooked):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat_already_booked", "retryable": false})
	case errors.Is(err, service.ErrCancelTooLate):
		return c.JSON(http.StatusConflict, echo.Map{"error": "cancel_too_late"})
	}
	log.ErrorWithContext(c.Request().Context(), "request failed", err, map[string]any{
		"method": c.Request().Method,
		"path":   c.Path(),
	})
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}

func parseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
