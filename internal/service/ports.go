// Package service holds the seat locking business rules.  It talks to
// storage and the broker only through the interfaces below so the rules can
// be exercised against any lock store implementation.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/queue"
	"github.com/iliyamo/cinema-seat-locking/internal/repository"
)

// LockStore is the durable record of seat locks.  TryAcquire must be a
// single atomic operation: of any number of concurrent callers for the same
// (show, seat) at most one may observe Acquired=true.
type LockStore interface {
	TryAcquire(ctx context.Context, showID, seatID uint64, sessionID string, expiresAt, now time.Time) (model.Acquisition, error)
	Release(ctx context.Context, showID, seatID uint64, sessionID string) (bool, error)
	ReleaseAll(ctx context.Context, sessionID string) (int64, error)
	ReleaseSeats(ctx context.Context, showID uint64, sessionID string, seatIDs []uint64) (int64, error)
	ListActive(ctx context.Context, showID uint64, now time.Time) ([]model.SeatLock, error)
	ListOwned(ctx context.Context, showID uint64, sessionID string, now time.Time) ([]model.SeatLock, error)
	SweepExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// TxLockStore is implemented by lock stores living in the reservations
// database.  Booking confirmation then re-validates and releases the locks
// inside the booking transaction itself.
type TxLockStore interface {
	LockStore
	OwnedForUpdateTx(ctx context.Context, tx *sql.Tx, showID uint64, sessionID string, now time.Time) ([]model.SeatLock, error)
	ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, showID uint64, sessionID string, seatIDs []uint64) (int64, error)
}

// SeatCatalog resolves seat codes within a show's hall.
type SeatCatalog interface {
	ResolveForShow(ctx context.Context, showID uint64, rowLabel string, seatNumber uint32) (*model.Seat, error)
	CodesByIDs(ctx context.Context, seatIDs []uint64) (map[uint64]string, error)
}

// BookingState answers whether seats belong to confirmed reservations.
// Implementations must not cache: the answer is re-read on every call.
type BookingState interface {
	IsSeatBooked(ctx context.Context, showID, seatID uint64) (bool, error)
	BookedSeatIDs(ctx context.Context, showID uint64) ([]uint64, error)
}

// ReservationStore persists confirmed reservations.
type ReservationStore interface {
	CreateConfirmed(ctx context.Context, res *model.Reservation, collect repository.SeatCollector) ([]uint64, error)
	Cancel(ctx context.Context, reservationID, userID uint64, now time.Time) (uint64, []uint64, error)
}

// EventPublisher emits seat and booking events.
type EventPublisher interface {
	PublishSeatEvent(ctx context.Context, ev queue.SeatLockEvent) error
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// NopPublisher drops every event.  Used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) PublishSeatEvent(context.Context, queue.SeatLockEvent) error { return nil }
func (NopPublisher) PublishBookingConfirmed(context.Context, queue.BookingConfirmedEvent) error {
	return nil
}

// Compile-time checks that the repositories satisfy the ports.
var (
	_ TxLockStore      = (*repository.SeatLockRepo)(nil)
	_ LockStore        = (*repository.RedisSeatLockRepo)(nil)
	_ SeatCatalog      = (*repository.SeatRepo)(nil)
	_ BookingState     = (*repository.ReservationRepo)(nil)
	_ ReservationStore = (*repository.ReservationRepo)(nil)
	_ EventPublisher   = (*queue.Publisher)(nil)
)
