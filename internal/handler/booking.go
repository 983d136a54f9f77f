package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/logger"
	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
)

// BookingConfirmer is the booking service as seen by the gateway.
type BookingConfirmer interface {
	Confirm(ctx context.Context, showID uint64, sessionID string, userID uint64) (*service.Confirmation, error)
	Cancel(ctx context.Context, reservationID, userID uint64) (int, error)
}

// BookingHandler converts locked seats into reservations for signed-in
// customers.  JWTAuth and RequireRole run before every method.
type BookingHandler struct {
	svc BookingConfirmer
	log *logger.Logger
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(svc BookingConfirmer, log *logger.Logger) *BookingHandler {
	if svc == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &BookingHandler{svc: svc, log: log}
}

type confirmRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
}

// Confirm handles POST /v1/shows/:id/confirm.  Every seat the session
// holds for the show is booked in one transaction and its lock released.
// 201 returns the reservation; 409 seat_already_booked means another
// booking won the race and nothing was booked.
func (h *BookingHandler) Confirm(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		req.SessionID = middleware.SessionID(c)
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "fields": validationDetails(err)})
	}

	conf, err := h.svc.Confirm(c.Request().Context(), showID, req.SessionID, userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id":     conf.ReservationID,
		"show_id":            conf.ShowID,
		"seat_codes":         conf.SeatCodes,
		"total_amount_cents": conf.TotalAmountCents,
	})
}

// Cancel handles DELETE /v1/reservations/:id.  The seats become lockable
// again immediately.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	n, err := h.svc.Cancel(c.Request().Context(), resID, userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled": true, "released_seats": n})
}
