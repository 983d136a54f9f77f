package model

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSeatCode is returned by ParseSeatCode when the code is not a
// row label followed by a seat number (e.g. "A10", "AA3").
var ErrInvalidSeatCode = errors.New("invalid seat code")

// Seat describes a physical seat in a hall.  Seats are
// uniquely identified by their hall, row label and seat number.
// The seat_type indicates whether the seat is standard, VIP or
// accessible for disabled patrons.
//
// Fields:
//  ID         – primary key identifier.
//  HallID     – hall to which this seat belongs.
//  RowLabel   – letter or string designating the row.
//  SeatNumber – number of the seat within the row.
//  SeatType   – type of seat (STANDARD, VIP, ACCESSIBLE).
//  IsActive   – whether the seat is active.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64    // seats.id
	HallID     uint64    // seats.hall_id
	RowLabel   string    // seats.row_label
	SeatNumber uint32    // seats.seat_number
	SeatType   string    // seats.seat_type
	IsActive   bool      // seats.is_active
	CreatedAt  time.Time // seats.created_at
	UpdatedAt  time.Time // seats.updated_at
}

// Code renders the human readable seat code, e.g. "A10".
func (s Seat) Code() string {
	return SeatCode(s.RowLabel, s.SeatNumber)
}

// SeatCode joins a row label and seat number into a seat code.
func SeatCode(row string, number uint32) string {
	return row + strconv.FormatUint(uint64(number), 10)
}

// ParseSeatCode splits a seat code into its row label and seat number.  The
// row label is one or more ASCII letters (upper-cased on return) and the
// number is a positive integer with no sign or separators.
func ParseSeatCode(code string) (string, uint32, error) {
	code = strings.TrimSpace(code)
	i := 0
	for i < len(code) && isASCIILetter(code[i]) {
		i++
	}
	if i == 0 || i == len(code) {
		return "", 0, ErrInvalidSeatCode
	}
	digits := code[i:]
	for j := 0; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return "", 0, ErrInvalidSeatCode
		}
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil || n == 0 {
		return "", 0, ErrInvalidSeatCode
	}
	return strings.ToUpper(code[:i]), uint32(n), nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
