package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/logger"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/queue"
	"github.com/iliyamo/cinema-seat-locking/internal/repository"
)

var (
	// ErrNoActiveLocks: the session holds no unexpired lock for the show.
	ErrNoActiveLocks = errors.New("no active seat locks for session")
	// ErrSeatAlreadyBooked: a seat was booked by someone else first.
	ErrSeatAlreadyBooked = repository.ErrSeatBooked
	// ErrReservationNotFound, ErrForbidden and ErrCancelTooLate come from
	// reservation cancellation.
	ErrReservationNotFound = repository.ErrReservationNotFound
	ErrForbidden           = repository.ErrForbidden
	ErrCancelTooLate       = repository.ErrConflict
)

// Confirmation describes a reservation created from a session's locks.
type Confirmation struct {
	ReservationID    uint64
	ShowID           uint64
	SeatIDs          []uint64
	SeatCodes        []string
	TotalAmountCents uint32
}

// BookingService turns a session's seat locks into a confirmed reservation.
// Booking is authoritative: seat availability is re-validated inside the
// booking transaction and a previously acquired lock is never trusted as a
// guarantee.
type BookingService struct {
	locks   LockStore
	res     ReservationStore
	catalog SeatCatalog
	events  EventPublisher
	log     *logger.Logger
	now     func() time.Time
}

// NewBookingService wires the booking service.
func NewBookingService(locks LockStore, res ReservationStore, catalog SeatCatalog, events EventPublisher, log *logger.Logger) *BookingService {
	if events == nil {
		events = NopPublisher{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &BookingService{
		locks:   locks,
		res:     res,
		catalog: catalog,
		events:  events,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

// Confirm books every seat sessionID currently holds for the show on
// behalf of userID and releases those locks.  When the lock store shares
// the reservations database the locks are read FOR UPDATE and deleted in
// the booking transaction; otherwise they are read before and released
// after it, and the unique key on reserved seats remains the final guard.
func (s *BookingService) Confirm(ctx context.Context, showID uint64, sessionID string, userID uint64) (*Confirmation, error) {
	if showID == 0 || userID == 0 {
		return nil, fmt.Errorf("%w: show id and user id are required", ErrValidation)
	}
	sessionID, err := validateSession(sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		collect      repository.SeatCollector
		releaseAfter bool
	)
	if txs, ok := s.locks.(TxLockStore); ok {
		collect = func(ctx context.Context, tx *sql.Tx) ([]uint64, error) {
			owned, err := txs.OwnedForUpdateTx(ctx, tx, showID, sessionID, now)
			if err != nil {
				return nil, err
			}
			ids := lockSeatIDs(owned)
			if len(ids) == 0 {
				return nil, ErrNoActiveLocks
			}
			if _, err := txs.ReleaseSeatsTx(ctx, tx, showID, sessionID, ids); err != nil {
				return nil, err
			}
			return ids, nil
		}
	} else {
		owned, err := s.locks.ListOwned(ctx, showID, sessionID, now)
		if err != nil {
			return nil, fmt.Errorf("confirm booking: %w", err)
		}
		ids := lockSeatIDs(owned)
		if len(ids) == 0 {
			return nil, ErrNoActiveLocks
		}
		collect = func(context.Context, *sql.Tx) ([]uint64, error) { return ids, nil }
		releaseAfter = true
	}

	res := &model.Reservation{UserID: userID, ShowID: showID, SessionID: sessionID}
	seatIDs, err := s.res.CreateConfirmed(ctx, res, collect)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoActiveLocks), errors.Is(err, ErrSeatAlreadyBooked), errors.Is(err, ErrShowNotFound):
			return nil, err
		default:
			return nil, fmt.Errorf("confirm booking: %w", err)
		}
	}

	if releaseAfter {
		// The seats are booked either way; leftover locks expire on their own.
		n, err := s.locks.ReleaseSeats(ctx, showID, sessionID, seatIDs)
		switch {
		case err != nil:
			s.log.ErrorWithContext(ctx, "release locks after booking failed", err, map[string]any{
				"reservation_id": res.ID,
				"session_id":     sessionID,
			})
		case n < int64(len(seatIDs)):
			s.log.WarnContext(ctx, "booked seats no longer locked by session",
				"reservation_id", res.ID,
				"session_id", sessionID,
				"released", n,
				"booked", len(seatIDs),
			)
		}
	}

	codes, err := s.catalog.CodesByIDs(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("confirm booking: %w", err)
	}
	labels := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		labels = append(labels, codes[id])
	}

	s.log.LogBookingConfirmed(ctx, res.ID, showID, sessionID, len(seatIDs))
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.PublishBookingConfirmed(pctx, queue.BookingConfirmedEvent{
		ReservationID:    res.ID,
		UserID:           userID,
		ShowID:           showID,
		SessionID:        sessionID,
		SeatLabels:       labels,
		TotalAmountCents: res.TotalAmountCents,
		ConfirmedAt:      now.Format(time.RFC3339),
	}); err != nil {
		s.log.WarnContext(ctx, "publish booking confirmed failed", "reservation_id", res.ID, "error", err)
	}

	return &Confirmation{
		ReservationID:    res.ID,
		ShowID:           showID,
		SeatIDs:          seatIDs,
		SeatCodes:        labels,
		TotalAmountCents: res.TotalAmountCents,
	}, nil
}

// Cancel cancels a user's reservation before the show starts and returns
// the number of seats that became lockable again.
func (s *BookingService) Cancel(ctx context.Context, reservationID, userID uint64) (int, error) {
	if reservationID == 0 || userID == 0 {
		return 0, fmt.Errorf("%w: reservation id and user id are required", ErrValidation)
	}
	showID, seatIDs, err := s.res.Cancel(ctx, reservationID, userID, s.now())
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "reservation cancelled",
		"reservation_id", reservationID,
		"show_id", showID,
		"seats", len(seatIDs),
	)
	return len(seatIDs), nil
}

func lockSeatIDs(locks []model.SeatLock) []uint64 {
	ids := make([]uint64, 0, len(locks))
	for _, l := range locks {
		ids = append(ids, l.SeatID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
