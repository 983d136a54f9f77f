// Package repository implements persistence for seat locks, the seat
// catalog lookups and confirmed reservations.  Sentinel errors declared
// here let the service layer classify failures without inspecting driver
// specific error values.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state.
var ErrConflict = errors.New("conflict")

// ErrShowNotFound is returned when a show id does not exist.
var ErrShowNotFound = errors.New("show not found")

// ErrSeatNotFound is returned when a seat code does not resolve to an
// active seat in the show's hall.
var ErrSeatNotFound = errors.New("seat not found")

// ErrSeatBooked is returned when a seat is already part of a confirmed
// reservation for the show.
var ErrSeatBooked = errors.New("seat already booked")

// ErrReservationNotFound is returned when a reservation id does not exist
// for the requesting user.
var ErrReservationNotFound = errors.New("reservation not found")

// MySQL server error numbers the repositories react to.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicateEntry(err error) bool { return mysqlErrNumber(err) == mysqlErrDuplicateEntry }

// isRetryableTxError reports errors after which InnoDB has rolled the
// transaction back and the whole statement may be retried.
func isRetryableTxError(err error) bool {
	n := mysqlErrNumber(err)
	return n == mysqlErrDeadlock || n == mysqlErrLockWaitTimeout
}
