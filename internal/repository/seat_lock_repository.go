package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// maxAcquireAttempts bounds how often TryAcquire replays its transaction
// after InnoDB picks it as a deadlock victim.  Replays wait
// attempt*acquireRetryDelay so racing sessions spread out.
const (
	maxAcquireAttempts = 5
	acquireRetryDelay  = 5 * time.Millisecond
)

// SeatLockRepo provides data access to the seat_locks table.  It is the
// only code that writes seat_locks rows.  All timestamps are supplied by
// the caller in UTC; expiry comparisons are always evaluated against the
// supplied now so that a lock never outlives its lease on any read path.
type SeatLockRepo struct {
	db *sql.DB
}

// NewSeatLockRepo returns a new SeatLockRepo bound to the provided database.
func NewSeatLockRepo(db *sql.DB) *SeatLockRepo { return &SeatLockRepo{db: db} }

// DB exposes the underlying handle so collaborating repositories can share
// a transaction with the lock store.
func (r *SeatLockRepo) DB() *sql.DB { return r.db }

// upsertLockQuery takes or refreshes a lock in one statement.  The unique
// key on (show_id, seat_id) makes racing inserts collide; the loser falls
// into the UPDATE branch, whose assignments only change the row when the
// stored lock has expired or already belongs to the caller.  MySQL applies
// the assignments left to right, so created_at and session_id are decided
// from the old row and expires_at/updated_at from the new session_id.
const upsertLockQuery = `INSERT INTO seat_locks (show_id, seat_id, session_id, expires_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    created_at = IF(expires_at <= ?, VALUES(created_at), created_at),
    session_id = IF(expires_at <= ? OR session_id = VALUES(session_id), VALUES(session_id), session_id),
    expires_at = IF(session_id = VALUES(session_id), VALUES(expires_at), expires_at),
    updated_at = IF(session_id = VALUES(session_id), VALUES(updated_at), updated_at)`

// TryAcquire atomically creates, takes over (when expired) or refreshes
// (when owned by sessionID) the lock on a seat.  Concurrent callers racing
// for the same seat see exactly one winner; the others get Acquired=false
// and leave the row untouched.
func (r *SeatLockRepo) TryAcquire(ctx context.Context, showID, seatID uint64, sessionID string, expiresAt, now time.Time) (model.Acquisition, error) {
	now = dbTime(now)
	expiresAt = dbTime(expiresAt)
	var (
		acq model.Acquisition
		err error
	)
	for attempt := 1; ; attempt++ {
		acq, err = r.tryAcquireOnce(ctx, showID, seatID, sessionID, expiresAt, now)
		if err == nil || !isRetryableTxError(err) || attempt == maxAcquireAttempts {
			break
		}
		if err = sleepCtx(ctx, time.Duration(attempt)*acquireRetryDelay); err != nil {
			break
		}
	}
	if err != nil {
		return model.Acquisition{}, fmt.Errorf("acquire seat lock show=%d seat=%d: %w", showID, seatID, err)
	}
	return acq, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *SeatLockRepo) tryAcquireOnce(ctx context.Context, showID, seatID uint64, sessionID string, expiresAt, now time.Time) (model.Acquisition, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Acquisition{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, upsertLockQuery,
		showID, seatID, sessionID, expiresAt, now, now,
		now, now,
	); err != nil {
		return model.Acquisition{}, err
	}

	// The upsert holds the row's exclusive lock until commit, so this read
	// observes exactly what the statement left behind.
	var (
		holder    string
		rowExpiry time.Time
		createdAt time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT session_id, expires_at, created_at FROM seat_locks WHERE show_id = ? AND seat_id = ? FOR UPDATE`,
		showID, seatID,
	).Scan(&holder, &rowExpiry, &createdAt)
	if err != nil {
		return model.Acquisition{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Acquisition{}, err
	}
	committed = true

	if holder != sessionID {
		return model.Acquisition{Acquired: false, ExpiresAt: rowExpiry.UTC()}, nil
	}
	return model.Acquisition{
		Acquired:  true,
		IsNew:     createdAt.UTC().Equal(now),
		ExpiresAt: rowExpiry.UTC(),
	}, nil
}

// Release deletes the lock on a seat only if it is owned by sessionID.  It
// reports whether a row was removed; a missing or foreign lock is not an
// error.
func (r *SeatLockRepo) Release(ctx context.Context, showID, seatID uint64, sessionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM seat_locks WHERE show_id = ? AND seat_id = ? AND session_id = ?`,
		showID, seatID, sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("release seat lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseAll removes every lock owned by sessionID across all shows and
// returns the number of rows deleted.
func (r *SeatLockRepo) ReleaseAll(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM seat_locks WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("release session locks: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseSeats removes the session's locks on the given seats of a show.
func (r *SeatLockRepo) ReleaseSeats(ctx context.Context, showID uint64, sessionID string, seatIDs []uint64) (int64, error) {
	return releaseSeats(ctx, r.db, showID, sessionID, seatIDs)
}

// ReleaseSeatsTx is ReleaseSeats inside the caller's transaction.  The
// caller must commit or roll back.
func (r *SeatLockRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, showID uint64, sessionID string, seatIDs []uint64) (int64, error) {
	return releaseSeats(ctx, tx, showID, sessionID, seatIDs)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func releaseSeats(ctx context.Context, db execer, showID uint64, sessionID string, seatIDs []uint64) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	query := `DELETE FROM seat_locks WHERE show_id = ? AND session_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := make([]any, 0, len(seatIDs)+2)
	args = append(args, showID, sessionID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("release seat locks: %w", err)
	}
	return res.RowsAffected()
}

// ListActive returns every unexpired lock for a show ordered by seat id.
func (r *SeatLockRepo) ListActive(ctx context.Context, showID uint64, now time.Time) ([]model.SeatLock, error) {
	const q = `SELECT id, show_id, seat_id, session_id, expires_at, created_at, updated_at
               FROM seat_locks
               WHERE show_id = ? AND expires_at > ?
               ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, q, showID, dbTime(now))
	if err != nil {
		return nil, fmt.Errorf("list active locks: %w", err)
	}
	return scanLocks(rows)
}

// ListOwned returns the unexpired locks held by sessionID for a show.
func (r *SeatLockRepo) ListOwned(ctx context.Context, showID uint64, sessionID string, now time.Time) ([]model.SeatLock, error) {
	const q = `SELECT id, show_id, seat_id, session_id, expires_at, created_at, updated_at
               FROM seat_locks
               WHERE show_id = ? AND session_id = ? AND expires_at > ?
               ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, q, showID, sessionID, dbTime(now))
	if err != nil {
		return nil, fmt.Errorf("list owned locks: %w", err)
	}
	return scanLocks(rows)
}

// OwnedForUpdateTx is ListOwned inside the caller's transaction with the
// rows locked until it ends.  Booking confirmation uses it to re-validate
// the session's locks in the same transaction that books the seats.
func (r *SeatLockRepo) OwnedForUpdateTx(ctx context.Context, tx *sql.Tx, showID uint64, sessionID string, now time.Time) ([]model.SeatLock, error) {
	const q = `SELECT id, show_id, seat_id, session_id, expires_at, created_at, updated_at
               FROM seat_locks
               WHERE show_id = ? AND session_id = ? AND expires_at > ?
               ORDER BY seat_id
               FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, showID, sessionID, dbTime(now))
	if err != nil {
		return nil, fmt.Errorf("lock owned seat locks: %w", err)
	}
	return scanLocks(rows)
}

// SweepExpired deletes up to limit locks whose lease ended at or before
// now and returns how many were removed.  A limit <= 0 removes all of them.
func (r *SeatLockRepo) SweepExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	query := `DELETE FROM seat_locks WHERE expires_at <= ?`
	args := []any{dbTime(now)}
	if limit > 0 {
		query += ` ORDER BY expires_at LIMIT ?`
		args = append(args, limit)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: %w", err)
	}
	return res.RowsAffected()
}

func scanLocks(rows *sql.Rows) ([]model.SeatLock, error) {
	defer rows.Close()
	var locks []model.SeatLock
	for rows.Next() {
		var l model.SeatLock
		if err := rows.Scan(&l.ID, &l.ShowID, &l.SeatID, &l.SessionID, &l.ExpiresAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.ExpiresAt = l.ExpiresAt.UTC()
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locks, nil
}

// dbTime normalises a timestamp to what a DATETIME(6) column stores so
// values read back compare equal to the ones written.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// errNoRows reports sql.ErrNoRows through any wrapping.
func errNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
