package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-locking/internal/handler"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
	"github.com/iliyamo/cinema-seat-locking/internal/utils"
)

const secret = "router-secret"

type stubLocker struct{}

func (stubLocker) LockSeat(context.Context, uint64, string, string) (service.LockResult, error) {
	return service.LockResult{Outcome: service.OutcomeAcquired, SeatID: 10, SeatCode: "A10"}, nil
}
func (stubLocker) UnlockSeat(context.Context, uint64, string, string) (service.UnlockResult, error) {
	return service.UnlockResult{Released: true}, nil
}
func (stubLocker) UnlockAllSeats(context.Context, string) (int64, error) { return 1, nil }
func (stubLocker) GetLockedSeats(context.Context, uint64, string) (service.SeatMap, error) {
	return service.SeatMap{Locked: []string{}, Mine: []string{}, Booked: []string{}}, nil
}

type stubBooking struct{ userID uint64 }

func (s *stubBooking) Confirm(_ context.Context, showID uint64, _ string, userID uint64) (*service.Confirmation, error) {
	s.userID = userID
	return &service.Confirmation{ReservationID: 1, ShowID: showID, SeatCodes: []string{"A10"}}, nil
}
func (s *stubBooking) Cancel(context.Context, uint64, uint64) (int, error) { return 1, nil }

func newServer(t *testing.T, booking *stubBooking) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	RegisterRoutes(e, Handlers{
		Locks:   handler.NewSeatLockHandler(stubLocker{}, nil, time.Minute),
		Booking: handler.NewBookingHandler(booking, nil),
	}, secret, nil)
	return e
}

func TestRegisterRoutes_AnonymousLockEndpoints(t *testing.T) {
	e := newServer(t, &stubBooking{})

	cases := []struct {
		method, target, body string
		status               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodPost, "/v1/lock-sessions", "", http.StatusCreated},
		{http.MethodPost, "/v1/shows/5/locks", `{"seat_code":"A10","session_id":"s"}`, http.StatusOK},
		{http.MethodGet, "/v1/shows/5/locks", "", http.StatusOK},
		{http.MethodDelete, "/v1/shows/5/locks/A10?session_id=s", "", http.StatusOK},
		{http.MethodDelete, "/v1/lock-sessions/s/locks", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, "%s %s: %s", tc.method, tc.target, rec.Body.String())
	}
}

func TestRegisterRoutes_BookingNeedsCustomerToken(t *testing.T) {
	booking := &stubBooking{}
	e := newServer(t, booking)

	confirm := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/shows/5/confirm", strings.NewReader(`{"session_id":"s"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if token != "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, confirm("").Code)

	owner, err := utils.NewAccessToken(secret, 3, "OWNER", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, confirm(owner.Token).Code)

	customer, err := utils.NewAccessToken(secret, 42, "CUSTOMER", time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), customer.Exp, 5*time.Second)
	rec := confirm(customer.Token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(42), booking.userID)

	req := httptest.NewRequest(http.MethodDelete, "/v1/reservations/1", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
