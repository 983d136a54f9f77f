package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/logger"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/queue"
	"github.com/iliyamo/cinema-seat-locking/internal/repository"
)

// DefaultLeaseDuration matches the seat selection countdown shown to
// customers.
const DefaultLeaseDuration = 5 * time.Minute

// publishTimeout bounds how long an operation waits for the broker.
const publishTimeout = 2 * time.Second

var (
	// ErrValidation wraps every request-shape failure.
	ErrValidation = errors.New("validation failed")
	// ErrSeatNotFound: the seat code does not exist in the show's hall.
	ErrSeatNotFound = repository.ErrSeatNotFound
	// ErrShowNotFound: the show id is unknown.
	ErrShowNotFound = repository.ErrShowNotFound
)

// Outcome classifies a lock attempt.  Conflicts are ordinary results.
type Outcome int

const (
	OutcomeAcquired Outcome = iota
	OutcomeSeatLocked
	OutcomeSeatAlreadyBooked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcquired:
		return "acquired"
	case OutcomeSeatLocked:
		return "seat_locked"
	case OutcomeSeatAlreadyBooked:
		return "seat_already_booked"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// LockResult is returned by LockSeat.  ExpiresAt is the caller's new lease
// end when Outcome is OutcomeAcquired and the holder's lease end when the
// seat is locked by someone else.
type LockResult struct {
	Outcome   Outcome
	SeatID    uint64
	SeatCode  string
	ExpiresAt time.Time
	IsNewLock bool
}

// UnlockResult reports whether a lock row was actually removed.
type UnlockResult struct {
	Released bool
}

// SeatMap is the polling view of a show.  Locked lists every seat with an
// unexpired lock, Mine the subset held by the asking session and Booked the
// seats of confirmed reservations.
type SeatMap struct {
	Locked []string
	Mine   []string
	Booked []string
}

// Policy carries the tunable lock parameters.
type Policy struct {
	LeaseDuration time.Duration
}

// SeatLockService implements acquire, release and status for seat locks.
// It keeps no in-memory state about locks; mutual exclusion is entirely the
// lock store's job.
type SeatLockService struct {
	store   LockStore
	catalog SeatCatalog
	booking BookingState
	events  EventPublisher
	log     *logger.Logger
	policy  Policy
	now     func() time.Time
}

// NewSeatLockService wires the service.  A nil publisher disables events
// and a zero lease falls back to DefaultLeaseDuration.
func NewSeatLockService(store LockStore, catalog SeatCatalog, booking BookingState, events EventPublisher, log *logger.Logger, policy Policy) *SeatLockService {
	if events == nil {
		events = NopPublisher{}
	}
	if log == nil {
		log = logger.Discard()
	}
	if policy.LeaseDuration <= 0 {
		policy.LeaseDuration = DefaultLeaseDuration
	}
	return &SeatLockService{
		store:   store,
		catalog: catalog,
		booking: booking,
		events:  events,
		log:     log,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; tests use it to move past expiry.
func (s *SeatLockService) WithClock(now func() time.Time) *SeatLockService {
	s.now = now
	return s
}

// Policy returns the effective lock policy.
func (s *SeatLockService) Policy() Policy { return s.policy }

// LockSeat acquires or refreshes sessionID's lock on seatCode for a show.
// The booking check runs before the atomic acquisition and is never cached.
func (s *SeatLockService) LockSeat(ctx context.Context, showID uint64, seatCode, sessionID string) (LockResult, error) {
	sessionID, err := validateSession(sessionID)
	if err != nil {
		return LockResult{}, err
	}
	seat, err := s.resolve(ctx, showID, seatCode)
	if err != nil {
		return LockResult{}, err
	}
	res := LockResult{SeatID: seat.ID, SeatCode: seat.Code()}

	booked, err := s.booking.IsSeatBooked(ctx, showID, seat.ID)
	if err != nil {
		return LockResult{}, fmt.Errorf("lock seat: %w", err)
	}
	if booked {
		res.Outcome = OutcomeSeatAlreadyBooked
		s.log.LogSeatConflict(ctx, showID, res.SeatCode, sessionID, res.Outcome.String())
		return res, nil
	}

	now := s.now()
	acq, err := s.store.TryAcquire(ctx, showID, seat.ID, sessionID, now.Add(s.policy.LeaseDuration), now)
	if err != nil {
		return LockResult{}, fmt.Errorf("lock seat: %w", err)
	}
	res.ExpiresAt = acq.ExpiresAt
	if !acq.Acquired {
		res.Outcome = OutcomeSeatLocked
		s.log.LogSeatConflict(ctx, showID, res.SeatCode, sessionID, res.Outcome.String())
		return res, nil
	}
	res.Outcome = OutcomeAcquired
	res.IsNewLock = acq.IsNew
	s.log.LogSeatLocked(ctx, showID, res.SeatCode, sessionID, acq.IsNew)
	s.publish(ctx, queue.SeatLockEvent{
		Type:      queue.SeatLocked,
		ShowID:    showID,
		SeatID:    seat.ID,
		SeatCode:  res.SeatCode,
		SessionID: sessionID,
		IsNewLock: acq.IsNew,
		ExpiresAt: acq.ExpiresAt.Format(time.RFC3339),
	})
	return res, nil
}

// UnlockSeat releases sessionID's lock on a seat.  Releasing a lock that
// does not exist or belongs to another session succeeds with
// Released=false.
func (s *SeatLockService) UnlockSeat(ctx context.Context, showID uint64, seatCode, sessionID string) (UnlockResult, error) {
	sessionID, err := validateSession(sessionID)
	if err != nil {
		return UnlockResult{}, err
	}
	seat, err := s.resolve(ctx, showID, seatCode)
	if err != nil {
		return UnlockResult{}, err
	}
	released, err := s.store.Release(ctx, showID, seat.ID, sessionID)
	if err != nil {
		return UnlockResult{}, fmt.Errorf("unlock seat: %w", err)
	}
	if released {
		s.log.LogSeatsReleased(ctx, sessionID, 1)
		s.publish(ctx, queue.SeatLockEvent{
			Type:      queue.SeatReleased,
			ShowID:    showID,
			SeatID:    seat.ID,
			SeatCode:  seat.Code(),
			SessionID: sessionID,
		})
	}
	return UnlockResult{Released: released}, nil
}

// UnlockAllSeats drops every lock held by sessionID across all shows and
// returns how many were removed.
func (s *SeatLockService) UnlockAllSeats(ctx context.Context, sessionID string) (int64, error) {
	sessionID, err := validateSession(sessionID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.ReleaseAll(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("unlock all seats: %w", err)
	}
	if n > 0 {
		s.log.LogSeatsReleased(ctx, sessionID, n)
		s.publish(ctx, queue.SeatLockEvent{
			Type:      queue.SessionReleased,
			SessionID: sessionID,
			Count:     n,
		})
	}
	return n, nil
}

// GetLockedSeats returns the current seat map of a show.  sessionID is
// optional; when empty Mine is empty.
func (s *SeatLockService) GetLockedSeats(ctx context.Context, showID uint64, sessionID string) (SeatMap, error) {
	if showID == 0 {
		return SeatMap{}, fmt.Errorf("%w: show id is required", ErrValidation)
	}
	sessionID = strings.TrimSpace(sessionID)
	locks, err := s.store.ListActive(ctx, showID, s.now())
	if err != nil {
		return SeatMap{}, fmt.Errorf("locked seats: %w", err)
	}
	booked, err := s.booking.BookedSeatIDs(ctx, showID)
	if err != nil {
		return SeatMap{}, fmt.Errorf("booked seats: %w", err)
	}

	ids := make([]uint64, 0, len(locks)+len(booked))
	for _, l := range locks {
		ids = append(ids, l.SeatID)
	}
	ids = append(ids, booked...)
	codes, err := s.catalog.CodesByIDs(ctx, ids)
	if err != nil {
		return SeatMap{}, fmt.Errorf("seat codes: %w", err)
	}

	m := SeatMap{Locked: []string{}, Mine: []string{}, Booked: []string{}}
	for _, l := range locks {
		code, ok := codes[l.SeatID]
		if !ok {
			continue
		}
		m.Locked = append(m.Locked, code)
		if sessionID != "" && l.SessionID == sessionID {
			m.Mine = append(m.Mine, code)
		}
	}
	for _, id := range booked {
		if code, ok := codes[id]; ok {
			m.Booked = append(m.Booked, code)
		}
	}
	return m, nil
}

func (s *SeatLockService) resolve(ctx context.Context, showID uint64, seatCode string) (*model.Seat, error) {
	if showID == 0 {
		return nil, fmt.Errorf("%w: show id is required", ErrValidation)
	}
	if strings.TrimSpace(seatCode) == "" {
		return nil, fmt.Errorf("%w: seat code is required", ErrValidation)
	}
	row, number, err := model.ParseSeatCode(seatCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	seat, err := s.catalog.ResolveForShow(ctx, showID, row, number)
	if err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) || errors.Is(err, repository.ErrShowNotFound) {
			return nil, fmt.Errorf("seat %s in show %d: %w", model.SeatCode(row, number), showID, err)
		}
		return nil, fmt.Errorf("resolve seat: %w", err)
	}
	return seat, nil
}

func (s *SeatLockService) publish(ctx context.Context, ev queue.SeatLockEvent) {
	ev.OccurredAt = s.now().Format(time.RFC3339)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.PublishSeatEvent(pctx, ev); err != nil {
		s.log.WarnContext(ctx, "publish seat event failed", "type", ev.Type, "error", err)
	}
}

// validateSession returns the trimmed session id so every store call and
// seat map comparison sees the same value.
func validateSession(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if len(sessionID) > maxSessionIDLen {
		return "", fmt.Errorf("%w: session id longer than %d characters", ErrValidation, maxSessionIDLen)
	}
	return sessionID, nil
}

// maxSessionIDLen matches the seat_locks.session_id column width.
const maxSessionIDLen = 128
