package model

import "time"

// Reservation statuses.  Only CONFIRMED reservations take seats out of the
// lockable pool.
const (
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
)

// Reservation records a booking for a specific show.
// It aggregates one or more seats booked under a single
// transaction and tracks the overall status and total amount.
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – user who made the reservation.
//  ShowID           – show being reserved.
//  SessionID        – seat-selection session whose locks were converted.
//  Status           – state of the reservation (CONFIRMED, CANCELLED).
//  TotalAmountCents – total price in cents for all seats.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Reservation struct {
	ID               uint64    // reservations.id
	UserID           uint64    // reservations.user_id
	ShowID           uint64    // reservations.show_id
	SessionID        string    // reservations.session_id
	Status           string    // reservations.status
	TotalAmountCents uint32    // reservations.total_amount_cents
	CreatedAt        time.Time // reservations.created_at
	UpdatedAt        time.Time // reservations.updated_at
}

// ReservationSeat links a reservation to individual seats for a
// show.  The (show_id, seat_id) pair is unique across all
// reservations, which is the final guard against double booking.
type ReservationSeat struct {
	ID            uint64    // reservation_seats.id
	ReservationID uint64    // reservation_seats.reservation_id
	ShowID        uint64    // reservation_seats.show_id
	SeatID        uint64    // reservation_seats.seat_id
	PriceCents    uint32    // reservation_seats.price_cents
	CreatedAt     time.Time // reservation_seats.created_at
}
