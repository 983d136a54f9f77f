package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// ReservationRepo reads and writes confirmed reservations.  Seat
// availability questions asked by the lock service are answered here and
// are never cached: every acquisition re-asks.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// IsSeatBooked reports whether the seat belongs to a confirmed reservation
// for the show.
func (r *ReservationRepo) IsSeatBooked(ctx context.Context, showID, seatID uint64) (bool, error) {
	const q = `SELECT EXISTS(
	               SELECT 1 FROM reservation_seats rs
	               JOIN reservations r ON r.id = rs.reservation_id
	               WHERE rs.show_id = ? AND rs.seat_id = ? AND r.status = 'CONFIRMED')`
	var booked bool
	if err := r.db.QueryRowContext(ctx, q, showID, seatID).Scan(&booked); err != nil {
		return false, fmt.Errorf("check seat booking: %w", err)
	}
	return booked, nil
}

// BookedSeatIDs lists the seats of a show held by confirmed reservations.
func (r *ReservationRepo) BookedSeatIDs(ctx context.Context, showID uint64) ([]uint64, error) {
	const q = `SELECT rs.seat_id
	           FROM reservation_seats rs
	           JOIN reservations r ON r.id = rs.reservation_id
	           WHERE rs.show_id = ? AND r.status = 'CONFIRMED'
	           ORDER BY rs.seat_id`
	rows, err := r.db.QueryContext(ctx, q, showID)
	if err != nil {
		return nil, fmt.Errorf("list booked seats: %w", err)
	}
	return scanIDs(rows)
}

// SeatCollector runs inside the booking transaction and returns the seats
// to book.  It is the hook through which a lock store sharing this database
// re-validates and releases the session's locks atomically with the booking.
type SeatCollector func(ctx context.Context, tx *sql.Tx) ([]uint64, error)

// CreateConfirmed books seats for a show in a single transaction.  The
// seats come from collect.  Availability is re-checked under row locks and
// the unique key on reservation_seats(show_id, seat_id) rejects any seat a
// concurrent transaction booked first; both cases return ErrSeatBooked and
// roll everything back.  Seat prices default to the show's base price.
func (r *ReservationRepo) CreateConfirmed(ctx context.Context, res *model.Reservation, collect SeatCollector) ([]uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin booking: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	seatIDs, err := collect(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(seatIDs) == 0 {
		return nil, errors.New("no seats to book")
	}

	var price uint32
	if err := tx.QueryRowContext(ctx, `SELECT base_price_cents FROM shows WHERE id = ?`, res.ShowID).Scan(&price); err != nil {
		if errNoRows(err) {
			return nil, ErrShowNotFound
		}
		return nil, fmt.Errorf("load show price: %w", err)
	}

	args := make([]any, 0, len(seatIDs)+1)
	args = append(args, res.ShowID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT seat_id FROM reservation_seats WHERE show_id = ? AND seat_id IN (`+placeholders(len(seatIDs))+`) FOR UPDATE`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("recheck seats: %w", err)
	}
	taken, err := scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("recheck seats: %w", err)
	}
	if len(taken) > 0 {
		return nil, fmt.Errorf("%w: seats %v", ErrSeatBooked, taken)
	}

	res.Status = model.ReservationConfirmed
	res.TotalAmountCents = price * uint32(len(seatIDs))
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (user_id, show_id, session_id, status, total_amount_cents) VALUES (?, ?, ?, ?, ?)`,
		res.UserID, res.ShowID, res.SessionID, res.Status, res.TotalAmountCents,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	res.ID = uint64(id)

	query := `INSERT INTO reservation_seats (reservation_id, show_id, seat_id, price_cents) VALUES `
	seatArgs := make([]any, 0, len(seatIDs)*4)
	for i, sid := range seatIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		seatArgs = append(seatArgs, res.ID, res.ShowID, sid, price)
	}
	if _, err := tx.ExecContext(ctx, query, seatArgs...); err != nil {
		if isDuplicateEntry(err) {
			return nil, ErrSeatBooked
		}
		return nil, fmt.Errorf("insert reservation seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	committed = true
	res.CreatedAt = time.Now().UTC()
	res.UpdatedAt = res.CreatedAt
	return seatIDs, nil
}

// Cancel marks a user's reservation CANCELLED and frees its seats so they
// become lockable again.  It returns the show id and the freed seat ids.
// ErrReservationNotFound, ErrForbidden (another user's reservation) and
// ErrConflict (show already started) leave the reservation untouched.
func (r *ReservationRepo) Cancel(ctx context.Context, reservationID, userID uint64, now time.Time) (uint64, []uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const q = `SELECT r.show_id, r.user_id, r.status, s.starts_at
	           FROM reservations r
	           JOIN shows s ON s.id = r.show_id
	           WHERE r.id = ?
	           FOR UPDATE`
	var (
		showID   uint64
		ownerID  uint64
		status   string
		startsAt time.Time
	)
	if err := tx.QueryRowContext(ctx, q, reservationID).Scan(&showID, &ownerID, &status, &startsAt); err != nil {
		if errNoRows(err) {
			return 0, nil, ErrReservationNotFound
		}
		return 0, nil, err
	}
	if ownerID != userID {
		return 0, nil, ErrForbidden
	}
	if status != model.ReservationConfirmed {
		return 0, nil, ErrReservationNotFound
	}
	if !startsAt.After(now) {
		return 0, nil, ErrConflict
	}

	rows, err := tx.QueryContext(ctx, `SELECT seat_id FROM reservation_seats WHERE reservation_id = ? ORDER BY seat_id`, reservationID)
	if err != nil {
		return 0, nil, err
	}
	seatIDs, err := scanIDs(rows)
	if err != nil {
		return 0, nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reservation_seats WHERE reservation_id = ?`, reservationID); err != nil {
		return 0, nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status = 'CANCELLED' WHERE id = ?`, reservationID); err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	committed = true
	return showID, seatIDs, nil
}

func scanIDs(rows *sql.Rows) ([]uint64, error) {
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
