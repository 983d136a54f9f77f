// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Messages are published on the default exchange with the
// queue name as routing key.
const (
	SeatEventsQueue       = "seat.locks"
	BookingConfirmedQueue = "booking.confirmed"
)

// Seat lock event types.
const (
	SeatLocked      = "seat.locked"
	SeatReleased    = "seat.released"
	SessionReleased = "session.released"
)

// SeatLockEvent is published whenever a seat lock is taken, refreshed or
// released so that downstream consumers (audit, analytics, push fan-out)
// can follow seat-map changes without polling the database.
type SeatLockEvent struct {
	Type       string `json:"type"`
	ShowID     uint64 `json:"show_id,omitempty"`
	SeatID     uint64 `json:"seat_id,omitempty"`
	SeatCode   string `json:"seat_code,omitempty"`
	SessionID  string `json:"session_id"`
	IsNewLock  bool   `json:"is_new_lock,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	Count      int64  `json:"count,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// BookingConfirmedEvent is published when a session's locks are converted
// into a confirmed reservation.
type BookingConfirmedEvent struct {
	ReservationID    uint64   `json:"reservation_id"`
	UserID           uint64   `json:"user_id"`
	ShowID           uint64   `json:"show_id"`
	SessionID        string   `json:"session_id"`
	SeatLabels       []string `json:"seats"`
	TotalAmountCents uint32   `json:"total_amount_cents"`
	ConfirmedAt      string   `json:"confirmed_at"`
}
