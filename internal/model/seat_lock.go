package model

import "time"

// SeatLock represents one client session's temporary claim on a seat for a
// show while tickets are being selected.  At most one unexpired lock may
// exist per (show, seat) pair; a lock whose ExpiresAt has passed is treated
// as absent by every read path and may be overwritten by any session.
//
// Fields:
//  ID        – primary key identifier.
//  ShowID    – show for which the seat is locked.
//  SeatID    – physical seat being locked (seats.id).
//  SessionID – opaque client session identifier; not tied to a user.
//  ExpiresAt – when the lease ends.
//  CreatedAt – when the current holder first acquired the lock.
//  UpdatedAt – last refresh.
type SeatLock struct {
	ID        uint64    // seat_locks.id
	ShowID    uint64    // seat_locks.show_id
	SeatID    uint64    // seat_locks.seat_id
	SessionID string    // seat_locks.session_id
	ExpiresAt time.Time // seat_locks.expires_at
	CreatedAt time.Time // seat_locks.created_at
	UpdatedAt time.Time // seat_locks.updated_at
}

// Active reports whether the lease is still running at now.
func (l SeatLock) Active(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// Acquisition is the outcome of an atomic attempt to take or refresh a
// seat lock.  When Acquired is false the seat is held by another session
// and ExpiresAt is the holder's expiry; no state was changed.
type Acquisition struct {
	Acquired  bool      // true when the caller now holds the lock
	IsNew     bool      // false when the caller refreshed its own live lock
	ExpiresAt time.Time // lease end of the lock as stored after the attempt
}
