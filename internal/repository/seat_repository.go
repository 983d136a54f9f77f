package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"fmt"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// SeatRepo resolves seat codes against the catalog tables (shows, seats).
// The catalog is owned by another subsystem; this repository only reads it.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// ResolveForShow finds the active seat with the given row label and number
// in the hall where the show is screened.  It returns ErrShowNotFound when
// the show does not exist and ErrSeatNotFound when the hall has no such
// active seat.
func (r *SeatRepo) ResolveForShow(ctx context.Context, showID uint64, rowLabel string, seatNumber uint32) (*model.Seat, error) {
	// LEFT JOIN keeps the show row when the seat is missing so both
	// failure modes are told apart with one round trip.
	const q = `SELECT sh.hall_id, s.id, s.row_label, s.seat_number, s.seat_type
	           FROM shows sh
	           LEFT JOIN seats s
	             ON s.hall_id = sh.hall_id AND s.row_label = ? AND s.seat_number = ? AND s.is_active = 1
	           WHERE sh.id = ?`
	var (
		hallID   uint64
		seatID   sql.NullInt64
		row      sql.NullString
		number   sql.NullInt64
		seatType sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, rowLabel, seatNumber, showID).Scan(&hallID, &seatID, &row, &number, &seatType)
	if err != nil {
		if errNoRows(err) {
			return nil, ErrShowNotFound
		}
		return nil, fmt.Errorf("resolve seat: %w", err)
	}
	if !seatID.Valid {
		return nil, ErrSeatNotFound
	}
	return &model.Seat{
		ID:         uint64(seatID.Int64),
		HallID:     hallID,
		RowLabel:   row.String,
		SeatNumber: uint32(number.Int64),
		SeatType:   seatType.String,
		IsActive:   true,
	}, nil
}

// CodesByIDs returns the seat code for each requested seat id.  Unknown ids
// are absent from the map.
func (r *SeatRepo) CodesByIDs(ctx context.Context, seatIDs []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(seatIDs))
	if len(seatIDs) == 0 {
		return out, nil
	}
	query := `SELECT id, row_label, seat_number FROM seats WHERE id IN (` + placeholders(len(seatIDs)) + `)`
	args := make([]any, 0, len(seatIDs))
	for _, id := range seatIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("seat codes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id     uint64
			row    string
			number uint32
		)
		if err := rows.Scan(&id, &row, &number); err != nil {
			return nil, err
		}
		out[id] = model.SeatCode(row, number)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
